package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/maauso/faceswap/internal/engine"
	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/media"
)

// FaceSwapper replaces faces in the target with the face of the source image.
// Unless ManyFaces is set, only faces close to a reference face are swapped.
type FaceSwapper struct {
	client engine.Client
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	source    []byte
	reference []float64
}

var _ FrameProcessor = (*FaceSwapper)(nil)

// NewFaceSwapper creates a FaceSwapper for one job.
func NewFaceSwapper(client engine.Client, deps Deps) *FaceSwapper {
	return &FaceSwapper{
		client: client,
		deps:   deps,
		logger: deps.logger().With(slog.String("processor", string(FaceSwapperID))),
	}
}

// ID implements FrameProcessor.
func (s *FaceSwapper) ID() ID { return FaceSwapperID }

// PreCheck verifies the swapper model is loaded.
func (s *FaceSwapper) PreCheck(ctx context.Context) error {
	return checkModel(ctx, s.client, engine.ModelSwapper)
}

// PreStart requires an image source with at least one face and an image or video target.
func (s *FaceSwapper) PreStart(ctx context.Context) error {
	req := s.deps.Request
	if media.DetectKind(req.SourcePath) != media.KindImage {
		return fmt.Errorf("%w: %s", ErrSourceNotImage, req.SourcePath)
	}
	if kind := media.DetectKind(req.TargetPath); kind != media.KindImage && kind != media.KindVideo {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, req.TargetPath)
	}

	source, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	faces, err := s.client.DetectFaces(ctx, source)
	if err != nil {
		return fmt.Errorf("detect source face: %w", err)
	}
	if len(faces) == 0 {
		return ErrNoSourceFace
	}

	s.mu.Lock()
	s.source = source
	s.mu.Unlock()
	return nil
}

// ProcessImage swaps faces in input and writes the result to output.
func (s *FaceSwapper) ProcessImage(ctx context.Context, source, input, output string) error {
	src, err := s.sourceImage(source)
	if err != nil {
		return err
	}
	target, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read target: %w", err)
	}

	opts := s.swapOptions()
	if !s.deps.Request.Options.ManyFaces {
		face, err := s.client.ReferenceFace(ctx, target, s.deps.Request.Options.ReferenceFacePosition)
		if isNoFace(err) {
			return s.keepImage(input, output, target)
		}
		if err != nil {
			return fmt.Errorf("reference face: %w", err)
		}
		opts.Reference = face.Embedding
	}

	out, err := s.client.Swap(ctx, src, target, opts)
	if isNoFace(err) {
		return s.keepImage(input, output, target)
	}
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}
	return writeFileAtomic(output, out)
}

// keepImage leaves a faceless target unchanged at output.
func (s *FaceSwapper) keepImage(input, output string, target []byte) error {
	s.logger.Warn("no face in target, image left unchanged", slog.String("target", input))
	if input == output {
		return nil
	}
	return writeFileAtomic(output, target)
}

// ProcessFrameSet swaps faces in every frame in place.
func (s *FaceSwapper) ProcessFrameSet(ctx context.Context, source string, frames job.FrameSet) error {
	if frames.Len() == 0 {
		return nil
	}
	src, err := s.sourceImage(source)
	if err != nil {
		return err
	}

	opts := s.swapOptions()
	if !s.deps.Request.Options.ManyFaces {
		ref, err := s.videoReference(ctx, frames)
		if isNoFace(err) {
			s.logger.Warn("no reference face in video, frames left unchanged",
				slog.Int("frame", s.referenceIndex(frames)),
				slog.Int("position", s.deps.Request.Options.ReferenceFacePosition),
			)
			return nil
		}
		if err != nil {
			return err
		}
		opts.Reference = ref
	}

	return RunFrames(ctx, frames, FrameRun{
		ID:              FaceSwapperID,
		Threads:         s.deps.Request.Options.ExecutionThreads,
		MaxFailureRatio: s.deps.MaxFrameFailureRatio,
		Progress:        s.deps.Progress,
		Logger:          s.logger,
	}, func(ctx context.Context, _ int, path string) error {
		frame, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		out, err := s.client.Swap(ctx, src, frame, opts)
		if isNoFace(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return writeFileAtomic(path, out)
	})
}

// PostProcess drops the cached source and reference face.
func (s *FaceSwapper) PostProcess(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
	s.reference = nil
	return nil
}

func (s *FaceSwapper) swapOptions() engine.SwapOptions {
	o := s.deps.Request.Options
	return engine.SwapOptions{
		ManyFaces:   o.ManyFaces,
		Distance:    o.SimilarFaceDistance,
		Threads:     o.ExecutionThreads,
		MaxMemoryGB: o.MaxMemoryGB,
	}
}

func (s *FaceSwapper) sourceImage(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != nil && path == s.deps.Request.SourcePath {
		return s.source, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	s.source = src
	return src, nil
}

// videoReference picks the reference face from frame ReferenceFrameNumber,
// clamped to the frame set, once per job.
func (s *FaceSwapper) videoReference(ctx context.Context, frames job.FrameSet) ([]float64, error) {
	s.mu.Lock()
	ref := s.reference
	s.mu.Unlock()
	if ref != nil {
		return ref, nil
	}

	o := s.deps.Request.Options
	idx := s.referenceIndex(frames)
	frame, err := os.ReadFile(frames[idx])
	if err != nil {
		return nil, fmt.Errorf("read reference frame: %w", err)
	}
	face, err := s.client.ReferenceFace(ctx, frame, o.ReferenceFacePosition)
	if err != nil {
		return nil, fmt.Errorf("reference face from frame %d: %w", idx, err)
	}

	s.logger.Debug("reference face selected", slog.Int("frame", idx), slog.Int("position", o.ReferenceFacePosition))
	s.mu.Lock()
	s.reference = face.Embedding
	s.mu.Unlock()
	return face.Embedding, nil
}

// referenceIndex clamps ReferenceFrameNumber to frames.
func (s *FaceSwapper) referenceIndex(frames job.FrameSet) int {
	return min(max(s.deps.Request.Options.ReferenceFrameNumber, 0), frames.Len()-1)
}

func checkModel(ctx context.Context, client engine.Client, model string) error {
	ready, err := client.ModelStatus(ctx, model)
	if err != nil {
		return fmt.Errorf("model %s status: %w", model, err)
	}
	if !ready {
		return fmt.Errorf("%w: %s", ErrModelNotReady, model)
	}
	return nil
}

// isNoFace reports whether err means the engine found no face to work on.
func isNoFace(err error) bool {
	return errors.Is(err, engine.ErrNoFace)
}
