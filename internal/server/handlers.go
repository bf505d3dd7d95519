package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/pipeline"
	"github.com/maauso/faceswap/internal/processor"
)

// Runner executes one job synchronously. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req job.Request) job.Result
}

// Catalog lists the available processors. *processor.Registry satisfies it.
type Catalog interface {
	List() []processor.Info
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	runner    Runner
	catalog   Catalog
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(runner Runner, catalog Catalog, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runner:    runner,
		catalog:   catalog,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListProcessors handles GET /processors requests.
func (h *Handlers) ListProcessors(w http.ResponseWriter, r *http.Request) {
	infos := h.catalog.List()
	resp := make([]ProcessorResponse, len(infos))
	for i, info := range infos {
		resp[i] = ProcessorResponse{ID: string(info.ID), Description: info.Description}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /jobs requests. The job runs to completion
// before the response is written.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	jobReq, err := toJobRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_OPTIONS")
		return
	}

	res := h.runner.Run(r.Context(), jobReq)
	h.logger.Info("job finished",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("job_id", res.JobID),
		slog.String("outcome", string(res.Outcome)),
	)
	if errors.Is(res.Err, pipeline.ErrBusy) {
		writeError(w, http.StatusConflict, "another job is running", "BUSY")
		return
	}

	writeJSON(w, statusFor(res), toJobResponse(res))
}

// toJobRequest applies the request's option overrides on top of the defaults.
func toJobRequest(req CreateJobRequest) (job.Request, error) {
	opts := job.DefaultOptions()
	if len(req.Options) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Options))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return job.Request{}, err
		}
	}

	processors := req.Processors
	if len(processors) == 0 {
		processors = []string{string(processor.FaceSwapperID)}
	}

	return job.Request{
		SourcePath: req.SourcePath,
		TargetPath: req.TargetPath,
		OutputPath: req.OutputPath,
		Processors: processors,
		Options:    opts,
	}, nil
}

func toJobResponse(res job.Result) JobResponse {
	return JobResponse{
		ID:         res.JobID,
		Outcome:    string(res.Outcome),
		OutputPath: res.OutputPath,
		URL:        res.URL,
		Stage:      string(res.Stage),
		Reason:     res.Reason,
		Warnings:   res.Warnings,
		FrameCount: res.FrameCount,
		FPS:        res.FPS,
	}
}

func statusFor(res job.Result) int {
	switch {
	case res.OK():
		return http.StatusOK
	case res.Outcome == job.OutcomeRejected:
		return http.StatusUnprocessableEntity
	case errors.Is(res.Err, job.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(res.Err, job.ErrPreflightFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
