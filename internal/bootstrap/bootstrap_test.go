package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/faceswap/internal/config"
	"github.com/maauso/faceswap/internal/processor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		EngineURL:         "http://engine.invalid:8000",
		TempDir:           t.TempDir(),
		NSFWThreshold:     0.85,
		NSFWFrameInterval: 100,
		DefaultFPS:        30,
		FailurePolicy:     "fail_fast",
	}
}

func TestNewDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	require.NotNil(t, deps.Pipeline)

	ids := make([]processor.ID, 0)
	for _, info := range deps.Registry.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []processor.ID{processor.FaceSwapperID, processor.FaceEnhancerID}, ids)
}

func TestNewDependencies_WithS3(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3Bucket = "outputs"
	cfg.S3Region = "eu-west-1"
	cfg.AWSAccessKeyID = "key"
	cfg.AWSSecretAccessKey = "secret"

	deps, err := NewDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NotNil(t, deps.Pipeline)
}

func TestNewDependencies_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.EngineURL = ""

	_, err := NewDependencies(context.Background(), cfg, slog.Default())
	assert.ErrorIs(t, err, config.ErrEngineURLRequired)
}
