// Package safety screens targets for NSFW content before any processing.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maauso/faceswap/internal/media"
)

// Defaults for the engine-backed gate.
const (
	DefaultThreshold     = 0.85
	DefaultFrameInterval = 100
)

// Verdict is the outcome of classifying one target.
type Verdict struct {
	// Safe is false when any classified image scored above the threshold.
	Safe bool
	// Score is the highest NSFW probability seen.
	Score float64
	// Frames is the number of images classified.
	Frames int
}

// Gate classifies targets before the pipeline touches them.
type Gate interface {
	// ClassifyImage classifies a single image file.
	ClassifyImage(ctx context.Context, path string) (Verdict, error)

	// ClassifyVideo classifies a sample of the frames of a video file.
	ClassifyVideo(ctx context.Context, path string) (Verdict, error)
}

// Classifier scores an encoded image. engine.Client satisfies it.
type Classifier interface {
	ClassifyNSFW(ctx context.Context, image []byte) (float64, error)
}

// Config tunes the engine-backed gate.
type Config struct {
	// Threshold is the probability above which content is unsafe.
	Threshold float64
	// FrameInterval samples one video frame out of every FrameInterval.
	FrameInterval int
	// MaxFrames caps the number of sampled frames; 0 means no cap.
	MaxFrames int
	// TempDir is where sampled frames are written. Empty means os.TempDir().
	TempDir string
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		FrameInterval: DefaultFrameInterval,
	}
}

// EngineGate classifies images with a Classifier and samples videos with a FrameSampler.
type EngineGate struct {
	classifier Classifier
	sampler    media.FrameSampler
	cfg        Config
	logger     *slog.Logger
}

var _ Gate = (*EngineGate)(nil)

// NewEngineGate creates an EngineGate. Zero config values fall back to defaults.
func NewEngineGate(classifier Classifier, sampler media.FrameSampler, cfg Config, logger *slog.Logger) *EngineGate {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineGate{classifier: classifier, sampler: sampler, cfg: cfg, logger: logger}
}

// ClassifyImage scores the image at path.
func (g *EngineGate) ClassifyImage(ctx context.Context, path string) (Verdict, error) {
	score, err := g.score(ctx, path)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Safe: score <= g.cfg.Threshold, Score: score, Frames: 1}, nil
}

// ClassifyVideo scores sampled frames and stops at the first unsafe one.
func (g *EngineGate) ClassifyVideo(ctx context.Context, path string) (Verdict, error) {
	dir, err := os.MkdirTemp(g.cfg.TempDir, "nsfw_*")
	if err != nil {
		return Verdict{}, fmt.Errorf("create sample dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			g.logger.Warn("failed to remove sample dir", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}()

	samples, err := g.sampler.SampleFrames(ctx, path, dir, g.cfg.FrameInterval, g.cfg.MaxFrames)
	if err != nil {
		return Verdict{}, fmt.Errorf("sample frames: %w", err)
	}

	v := Verdict{Safe: true}
	for _, sample := range samples {
		score, err := g.score(ctx, sample)
		if err != nil {
			return Verdict{}, err
		}
		v.Frames++
		v.Score = max(v.Score, score)
		if score > g.cfg.Threshold {
			v.Safe = false
			break
		}
	}

	g.logger.Debug("video classified",
		slog.String("path", path),
		slog.Int("frames", v.Frames),
		slog.Float64("max_score", v.Score),
		slog.Bool("safe", v.Safe),
	)
	return v, nil
}

func (g *EngineGate) score(ctx context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	score, err := g.classifier.ClassifyNSFW(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	return score, nil
}
