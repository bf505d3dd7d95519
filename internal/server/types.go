// Package server exposes the pipeline over HTTP: a synchronous job endpoint,
// the processor catalog, health and metrics. DTOs are kept apart from domain types.
package server

import "encoding/json"

// CreateJobRequest is the HTTP request body for running a job.
type CreateJobRequest struct {
	// SourcePath is the image providing the face, on the server's filesystem.
	SourcePath string `json:"source_path" validate:"required"`
	// TargetPath is the image or video to modify, on the server's filesystem.
	TargetPath string `json:"target_path" validate:"required"`
	// OutputPath overrides the default swapped_<name> location.
	OutputPath string `json:"output_path,omitempty"`
	// Processors lists processor IDs in application order. Defaults to face_swapper.
	Processors []string `json:"processors,omitempty" validate:"omitempty,unique,dive,required"`
	// Options overrides individual defaults; omitted fields keep their default.
	Options json.RawMessage `json:"options,omitempty"`
}

// JobResponse is the HTTP response for a finished job.
type JobResponse struct {
	ID         string   `json:"id"`
	Outcome    string   `json:"outcome"`
	OutputPath string   `json:"output_path,omitempty"`
	URL        string   `json:"url,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	FrameCount int      `json:"frame_count,omitempty"`
	FPS        float64  `json:"fps,omitempty"`
}

// ProcessorResponse describes one registered processor.
type ProcessorResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
