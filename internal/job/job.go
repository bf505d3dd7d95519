// Package job describes a single face swap job: the immutable request the
// pipeline consumes, its tunable options and the tagged result it produces.
package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Stage names the pipeline step a failure is attributed to.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageSafety    Stage = "safety"
	StageImage     Stage = "image"
	StageExtract   Stage = "extract"
	StageProcess   Stage = "process"
	StageAssemble  Stage = "assemble"
	StageAudio     Stage = "audio"
	StagePublish   Stage = "publish"
)

// Outcome is the tag of a Result.
type Outcome string

const (
	// OutcomeSuccess means the output file exists at Result.OutputPath.
	OutcomeSuccess Outcome = "success"
	// OutcomeRejected means the safety gate flagged the target. No output was written.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means a stage failed. Result.Stage says which one.
	OutcomeFailed Outcome = "failed"
)

// Reasons carried by rejected and failed results.
const (
	ReasonNSFW           = "NSFW"
	ReasonInvalidRequest = "InvalidRequest"
	ReasonNoFrames       = "no frames"
)

// OutputPrefix is prepended to the target's base name to form the default output path.
const OutputPrefix = "swapped_"

var validate = validator.New()

// Request is one unit of work. It is not modified once the pipeline accepts it.
type Request struct {
	// ID identifies the job in logs, metrics and workspace names.
	ID string `json:"id"`
	// SourcePath is the still image providing the face.
	SourcePath string `json:"source_path" validate:"required"`
	// TargetPath is the image or video whose faces are replaced.
	TargetPath string `json:"target_path" validate:"required"`
	// OutputPath overrides the default swapped_<name> location when set.
	OutputPath string `json:"output_path,omitempty"`
	// Processors lists processor IDs in application order.
	Processors []string `json:"processors" validate:"required,min=1,unique,dive,required"`
	// Options tunes extraction, processing and encoding.
	Options Options `json:"options"`
}

// Validate checks the request without touching the filesystem.
// Every failure wraps ErrInvalidRequest.
func (r Request) Validate() error {
	if r.SourcePath == "" || r.TargetPath == "" {
		return fmt.Errorf("%w: source and target paths are required", ErrInvalidRequest)
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Output returns the path the final artifact is written to.
func (r Request) Output() string {
	if r.OutputPath != "" {
		return r.OutputPath
	}
	return DefaultOutputPath(r.TargetPath)
}

// DefaultOutputPath places swapped_<basename> next to the target.
func DefaultOutputPath(target string) string {
	return filepath.Join(filepath.Dir(target), OutputPrefix+filepath.Base(target))
}

// FrameSet is an ordered, contiguous list of frame image paths.
// Processors rewrite frames in place; the length and order never change.
type FrameSet []string

// Len returns the number of frames.
func (f FrameSet) Len() int { return len(f) }

// Result is the tagged outcome of a job.
type Result struct {
	JobID      string   `json:"job_id"`
	Outcome    Outcome  `json:"outcome"`
	OutputPath string   `json:"output_path,omitempty"`
	URL        string   `json:"url,omitempty"`
	Stage      Stage    `json:"stage,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	FrameCount int      `json:"frame_count,omitempty"`
	FPS        float64  `json:"fps,omitempty"`
	// Err wraps one of the package's static errors. Nil on success.
	Err error `json:"-"`
}

// Success builds a successful result for the given output path.
func Success(outputPath string) Result {
	return Result{Outcome: OutcomeSuccess, OutputPath: outputPath}
}

// Rejected builds a result for content refused by the safety gate.
func Rejected(reason string) Result {
	return Result{
		Outcome: OutcomeRejected,
		Stage:   StageSafety,
		Reason:  reason,
		Err:     fmt.Errorf("%w: %s", ErrContentRejected, reason),
	}
}

// Failed builds a failure result attributed to stage.
func Failed(stage Stage, err error) Result {
	return Result{
		Outcome: OutcomeFailed,
		Stage:   stage,
		Reason:  reasonFor(err),
		Err:     err,
	}
}

// OK reports whether the job succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// String renders the result for logs and CLI output.
func (r Result) String() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("success: %s", r.OutputPath)
	case OutcomeRejected:
		return fmt.Sprintf("rejected: %s", r.Reason)
	default:
		return fmt.Sprintf("failed at %s: %s", r.Stage, r.Reason)
	}
}
