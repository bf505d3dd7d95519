// Package bootstrap wires configuration into a ready-to-run pipeline.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/faceswap/internal/audio"
	"github.com/maauso/faceswap/internal/config"
	"github.com/maauso/faceswap/internal/engine"
	"github.com/maauso/faceswap/internal/media"
	"github.com/maauso/faceswap/internal/pipeline"
	"github.com/maauso/faceswap/internal/processor"
	"github.com/maauso/faceswap/internal/safety"
	"github.com/maauso/faceswap/internal/storage"
)

// Dependencies holds everything the HTTP server and the CLI need.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Registry *processor.Registry
}

// NewDependencies creates and initializes all dependencies for the application.
// extra options are applied after the ones derived from cfg.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...pipeline.Option) (*Dependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize engine client
	client, err := engine.NewClient(cfg.EngineURL,
		engine.WithAPIKey(cfg.EngineAPIKey),
		engine.WithTimeout(cfg.EngineTimeout),
		engine.WithMaxRetries(cfg.EngineMaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}

	workspaces, err := storage.NewWorkspaces(cfg.TempDir, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	gate := safety.NewEngineGate(client, ffmpeg, safety.Config{
		Threshold:     cfg.NSFWThreshold,
		FrameInterval: cfg.NSFWFrameInterval,
		MaxFrames:     cfg.NSFWMaxFrames,
		TempDir:       workspaces.Root(),
	}, logger)

	registry := processor.DefaultRegistry(client)

	policy, err := pipeline.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithFailurePolicy(policy),
		pipeline.WithMaxFrameFailureRatio(cfg.MaxFrameFailureRatio),
		pipeline.WithDefaultFPS(cfg.DefaultFPS),
	}

	p := pipeline.New(pipeline.Deps{
		Processors: registry,
		Gate:       gate,
		Workspaces: workspaces,
		Extractor:  ffmpeg,
		Assembler:  ffmpeg,
		Restorer:   audio.NewFFmpegRestorer(cfg.FFmpegPath, ffmpeg, logger),
		Publisher:  publisher,
	}, append(opts, extra...)...)

	logger.Info("pipeline configured",
		slog.String("engine_url", cfg.EngineURL),
		slog.String("temp_dir", workspaces.Root()),
		slog.String("failure_policy", string(policy)),
		slog.Float64("nsfw_threshold", cfg.NSFWThreshold),
	)

	return &Dependencies{
		Pipeline: p,
		Registry: registry,
	}, nil
}

// initPublisher returns the S3 publisher when S3 is configured, nil otherwise.
func initPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	if !cfg.S3Enabled() {
		logger.Info("S3 publishing disabled, outputs stay local")
		return nil, nil
	}

	pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Prefix:          cfg.S3Prefix,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 publisher: %w", err)
	}
	logger.Info("S3 publishing configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return pub, nil
}
