package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maauso/faceswap/internal/engine"
	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/media"
)

// FaceEnhancer restores face detail, typically after FaceSwapper.
type FaceEnhancer struct {
	client engine.Client
	deps   Deps
	logger *slog.Logger
}

var _ FrameProcessor = (*FaceEnhancer)(nil)

// NewFaceEnhancer creates a FaceEnhancer for one job.
func NewFaceEnhancer(client engine.Client, deps Deps) *FaceEnhancer {
	return &FaceEnhancer{
		client: client,
		deps:   deps,
		logger: deps.logger().With(slog.String("processor", string(FaceEnhancerID))),
	}
}

// ID implements FrameProcessor.
func (e *FaceEnhancer) ID() ID { return FaceEnhancerID }

// PreCheck verifies the enhancer model is loaded.
func (e *FaceEnhancer) PreCheck(ctx context.Context) error {
	return checkModel(ctx, e.client, engine.ModelEnhancer)
}

// PreStart requires an image or video target.
func (e *FaceEnhancer) PreStart(context.Context) error {
	target := e.deps.Request.TargetPath
	if kind := media.DetectKind(target); kind != media.KindImage && kind != media.KindVideo {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	return nil
}

// ProcessImage enhances input into output. Images without faces are left as is.
func (e *FaceEnhancer) ProcessImage(ctx context.Context, _, input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	out, err := e.enhance(ctx, data)
	if err != nil {
		return fmt.Errorf("enhance: %w", err)
	}
	return writeFileAtomic(output, out)
}

// ProcessFrameSet enhances every frame in place.
func (e *FaceEnhancer) ProcessFrameSet(ctx context.Context, _ string, frames job.FrameSet) error {
	return RunFrames(ctx, frames, FrameRun{
		ID:              FaceEnhancerID,
		Threads:         e.deps.Request.Options.ExecutionThreads,
		MaxFailureRatio: e.deps.MaxFrameFailureRatio,
		Progress:        e.deps.Progress,
		Logger:          e.logger,
	}, func(ctx context.Context, _ int, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		out, err := e.enhance(ctx, data)
		if err != nil {
			return err
		}
		return writeFileAtomic(path, out)
	})
}

// PostProcess implements FrameProcessor. The enhancer keeps no per-job state.
func (e *FaceEnhancer) PostProcess(context.Context) error { return nil }

func (e *FaceEnhancer) enhance(ctx context.Context, data []byte) ([]byte, error) {
	out, err := e.client.Enhance(ctx, data, e.deps.Request.Options.ExecutionThreads)
	if isNoFace(err) {
		return data, nil
	}
	return out, err
}
