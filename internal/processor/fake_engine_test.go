package processor

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/faceswap/internal/engine"
	"github.com/maauso/faceswap/internal/job"
)

// mockEngine is a testify mock of engine.Client.
type mockEngine struct {
	mock.Mock
}

var _ engine.Client = (*mockEngine)(nil)

func (m *mockEngine) ModelStatus(ctx context.Context, model string) (bool, error) {
	args := m.Called(ctx, model)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) DetectFaces(ctx context.Context, img []byte) ([]engine.Face, error) {
	args := m.Called(ctx, img)
	faces, _ := args.Get(0).([]engine.Face)
	return faces, args.Error(1)
}

func (m *mockEngine) ReferenceFace(ctx context.Context, img []byte, position int) (engine.Face, error) {
	args := m.Called(ctx, img, position)
	return args.Get(0).(engine.Face), args.Error(1)
}

func (m *mockEngine) Swap(ctx context.Context, source, target []byte, opts engine.SwapOptions) ([]byte, error) {
	args := m.Called(ctx, source, target, opts)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockEngine) Enhance(ctx context.Context, img []byte, threads int) ([]byte, error) {
	args := m.Called(ctx, img, threads)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockEngine) ClassifyNSFW(ctx context.Context, img []byte) (float64, error) {
	args := m.Called(ctx, img)
	return args.Get(0).(float64), args.Error(1)
}

// writeSourcePNG writes a tiny PNG so content sniffing sees an image.
func writeSourcePNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))))
	return path
}

// writeFrames creates n frame files whose content is their index name.
func writeFrames(t *testing.T, dir string, n int) job.FrameSet {
	t.Helper()
	frames := make(job.FrameSet, n)
	for i := range frames {
		frames[i] = filepath.Join(dir, frameName(i))
		require.NoError(t, os.WriteFile(frames[i], []byte(frameName(i)), 0600))
	}
	return frames
}

func frameName(i int) string {
	return fmt.Sprintf("%04d.png", i+1)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
