// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/faceswap/internal/pipeline"
)

// Static errors for configuration validation.
var (
	// ErrEngineURLRequired is returned when ENGINE_URL is not set.
	ErrEngineURLRequired = errors.New("config: ENGINE_URL is required")
	// ErrInvalidThreshold is returned when NSFW_THRESHOLD is outside (0, 1].
	ErrInvalidThreshold = errors.New("config: NSFW_THRESHOLD must be in (0, 1]")
	// ErrInvalidFrameInterval is returned when NSFW_FRAME_INTERVAL is not positive.
	ErrInvalidFrameInterval = errors.New("config: NSFW_FRAME_INTERVAL must be positive")
	// ErrInvalidFailureRatio is returned when MAX_FRAME_FAILURE_RATIO is outside [0, 1].
	ErrInvalidFailureRatio = errors.New("config: MAX_FRAME_FAILURE_RATIO must be in [0, 1]")
	// ErrInvalidFPS is returned when DEFAULT_FPS is not positive.
	ErrInvalidFPS = errors.New("config: DEFAULT_FPS must be positive")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Model engine settings
	EngineURL        string        `env:"ENGINE_URL" json:"engine_url"`
	EngineAPIKey     string        `env:"ENGINE_API_KEY" json:"-"` // Masked in JSON
	EngineTimeout    time.Duration `env:"ENGINE_TIMEOUT, default=60s" json:"engine_timeout"`
	EngineMaxRetries int           `env:"ENGINE_MAX_RETRIES, default=3" json:"engine_max_retries"`

	// Media tooling
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/faceswap" json:"temp_dir"`

	// Safety gate
	NSFWThreshold     float64 `env:"NSFW_THRESHOLD, default=0.85" json:"nsfw_threshold"`
	NSFWFrameInterval int     `env:"NSFW_FRAME_INTERVAL, default=100" json:"nsfw_frame_interval"`
	NSFWMaxFrames     int     `env:"NSFW_MAX_FRAMES, default=0" json:"nsfw_max_frames"`

	// Processing settings
	DefaultFPS           float64 `env:"DEFAULT_FPS, default=30" json:"default_fps"`
	FailurePolicy        string  `env:"FAILURE_POLICY, default=fail_fast" json:"failure_policy"`
	MaxFrameFailureRatio float64 `env:"MAX_FRAME_FAILURE_RATIO, default=0" json:"max_frame_failure_ratio"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Observability
	OTELEndpoint   string `env:"OTEL_ENDPOINT" json:"otel_endpoint,omitempty"`
	MetricsEnabled bool   `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It does not validate; call Validate once flag overrides are applied.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and in range.
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return ErrEngineURLRequired
	}
	if c.NSFWThreshold <= 0 || c.NSFWThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.NSFWFrameInterval <= 0 {
		return ErrInvalidFrameInterval
	}
	if c.MaxFrameFailureRatio < 0 || c.MaxFrameFailureRatio > 1 {
		return ErrInvalidFailureRatio
	}
	if c.DefaultFPS <= 0 {
		return ErrInvalidFPS
	}
	if _, err := pipeline.ParseFailurePolicy(c.FailurePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger writing to w.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, EngineURL: %s, EngineAPIKey: %s, TempDir: %s, NSFWThreshold: %g, FailurePolicy: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.EngineURL,
		mask(c.EngineAPIKey),
		c.TempDir,
		c.NSFWThreshold,
		c.FailurePolicy,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
