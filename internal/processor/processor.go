// Package processor defines the frame processor contract the pipeline drives,
// an ID-keyed registry of processor factories and the built-in face processors.
package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maauso/faceswap/internal/job"
)

// ID names a processor in requests, e.g. "face_swapper".
type ID string

// Built-in processor IDs.
const (
	FaceSwapperID  ID = "face_swapper"
	FaceEnhancerID ID = "face_enhancer"
)

// Static errors for processor operations.
var (
	// ErrUnknownProcessor is returned when a request names an unregistered processor.
	ErrUnknownProcessor = errors.New("unknown processor")
	// ErrDuplicateProcessor is returned when an ID is registered twice.
	ErrDuplicateProcessor = errors.New("processor already registered")
	// ErrModelNotReady is returned by PreCheck when the backing model is unavailable.
	ErrModelNotReady = errors.New("model not ready")
	// ErrSourceNotImage is returned when the source path is not an image.
	ErrSourceNotImage = errors.New("source is not an image")
	// ErrNoSourceFace is returned when no face is detected in the source image.
	ErrNoSourceFace = errors.New("no face in source image")
	// ErrInvalidTarget is returned when the target is neither an image nor a video.
	ErrInvalidTarget = errors.New("target is neither an image nor a video")
	// ErrFrameFailures is returned when too many frames fail within one stage.
	ErrFrameFailures = errors.New("too many frame failures")
)

// FrameProcessor transforms an image or a set of video frames in place.
//
// The pipeline calls PreCheck and PreStart on every processor of a job before
// any output is written, then ProcessImage or ProcessFrameSet in request order,
// then PostProcess on every processor. A processor instance serves one job.
type FrameProcessor interface {
	// ID returns the registry ID of the processor.
	ID() ID

	// PreCheck verifies static resources such as models are available.
	PreCheck(ctx context.Context) error

	// PreStart verifies the job's inputs are acceptable for this processor.
	PreStart(ctx context.Context) error

	// ProcessImage reads input, applies the transform and writes output.
	// input and output may be the same path.
	ProcessImage(ctx context.Context, source, input, output string) error

	// ProcessFrameSet rewrites every frame in place. It returns only after
	// all frames are done; frame order and count are unchanged.
	ProcessFrameSet(ctx context.Context, source string, frames job.FrameSet) error

	// PostProcess releases per-job state. It runs even after failures.
	PostProcess(ctx context.Context) error
}

// ProgressFunc is notified after each frame a processor finishes.
type ProgressFunc func(id ID, done, total int)

// Deps is what a factory gets to build a processor for one job.
type Deps struct {
	// Request is the job being executed.
	Request job.Request
	// Logger is scoped to the job.
	Logger *slog.Logger
	// Progress, when set, receives per-frame progress.
	Progress ProgressFunc
	// MaxFrameFailureRatio is the share of frames (0..1) allowed to fail
	// before ProcessFrameSet returns ErrFrameFailures.
	MaxFrameFailureRatio float64
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Factory builds a processor instance for one job.
type Factory func(deps Deps) (FrameProcessor, error)

// Chain is the ordered list of processors for one job.
type Chain []FrameProcessor

// IDs returns the processor IDs in chain order.
func (c Chain) IDs() []ID {
	ids := make([]ID, len(c))
	for i, p := range c {
		ids[i] = p.ID()
	}
	return ids
}
