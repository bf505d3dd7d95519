package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/faceswap/internal/engine"
	"github.com/maauso/faceswap/internal/job"
)

func swapperRequest(t *testing.T, dir, target string) job.Request {
	t.Helper()
	targetPath := filepath.Join(dir, target)
	require.NoError(t, os.WriteFile(targetPath, []byte("target"), 0600))
	return job.Request{
		SourcePath: writeSourcePNG(t, dir),
		TargetPath: targetPath,
		Processors: []string{string(FaceSwapperID)},
		Options:    job.DefaultOptions(),
	}
}

func TestFaceSwapper_PreCheck(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		err    error
		target error
	}{
		{"ready", true, nil, nil},
		{"not ready", false, nil, ErrModelNotReady},
		{"status error", false, errors.New("down"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{}
			eng.On("ModelStatus", mock.Anything, engine.ModelSwapper).Return(tt.ready, tt.err)

			err := NewFaceSwapper(eng, Deps{}).PreCheck(context.Background())
			switch {
			case tt.target != nil:
				assert.ErrorIs(t, err, tt.target)
			case tt.err != nil:
				assert.ErrorIs(t, err, tt.err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestFaceSwapper_PreStart(t *testing.T) {
	dir := t.TempDir()

	t.Run("source with face", func(t *testing.T) {
		req := swapperRequest(t, dir, "clip.mp4")
		eng := &mockEngine{}
		eng.On("DetectFaces", mock.Anything, mock.Anything).Return([]engine.Face{{Score: 0.9}}, nil)

		require.NoError(t, NewFaceSwapper(eng, Deps{Request: req}).PreStart(context.Background()))
		eng.AssertExpectations(t)
	})

	t.Run("source without face", func(t *testing.T) {
		req := swapperRequest(t, dir, "clip.mp4")
		eng := &mockEngine{}
		eng.On("DetectFaces", mock.Anything, mock.Anything).Return([]engine.Face{}, nil)

		err := NewFaceSwapper(eng, Deps{Request: req}).PreStart(context.Background())
		assert.ErrorIs(t, err, ErrNoSourceFace)
	})

	t.Run("source is not an image", func(t *testing.T) {
		req := swapperRequest(t, dir, "clip.mp4")
		req.SourcePath = req.TargetPath

		err := NewFaceSwapper(&mockEngine{}, Deps{Request: req}).PreStart(context.Background())
		assert.ErrorIs(t, err, ErrSourceNotImage)
	})

	t.Run("target is neither image nor video", func(t *testing.T) {
		req := swapperRequest(t, dir, "notes.txt")

		err := NewFaceSwapper(&mockEngine{}, Deps{Request: req}).PreStart(context.Background())
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})
}

func TestFaceSwapper_ProcessImage(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "photo.png")
	output := filepath.Join(dir, "swapped_photo.png")
	require.NoError(t, os.WriteFile(output, []byte("target"), 0600))

	eng := &mockEngine{}
	eng.On("ReferenceFace", mock.Anything, []byte("target"), 0).Return(engine.Face{Embedding: []float64{0.3}}, nil)
	eng.On("Swap", mock.Anything, mock.Anything, []byte("target"), engine.SwapOptions{
		Reference:   []float64{0.3},
		Distance:    0.85,
		Threads:     8,
		MaxMemoryGB: 60,
	}).Return([]byte("swapped"), nil)

	s := NewFaceSwapper(eng, Deps{Request: req})
	require.NoError(t, s.ProcessImage(context.Background(), req.SourcePath, output, output))
	assert.Equal(t, "swapped", readFile(t, output))
	eng.AssertExpectations(t)
}

func TestFaceSwapper_ProcessImage_SwapError(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "photo.png")
	req.Options.ManyFaces = true

	eng := &mockEngine{}
	eng.On("Swap", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("gpu melted"))

	err := NewFaceSwapper(eng, Deps{Request: req}).ProcessImage(context.Background(), req.SourcePath, req.TargetPath, req.TargetPath)
	assert.ErrorContains(t, err, "gpu melted")
	assert.Equal(t, "target", readFile(t, req.TargetPath))
	eng.AssertNotCalled(t, "ReferenceFace", mock.Anything, mock.Anything, mock.Anything)
}

func TestFaceSwapper_ProcessFrameSet_ReferenceFrame(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "clip.mp4")
	req.Options.ReferenceFrameNumber = 99 // clamped to the last frame
	req.Options.ReferenceFacePosition = 1
	frames := writeFrames(t, t.TempDir(), 5)

	eng := &mockEngine{}
	eng.On("ReferenceFace", mock.Anything, []byte(frameName(4)), 1).Return(engine.Face{Embedding: []float64{0.7}}, nil).Once()
	eng.On("Swap", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(o engine.SwapOptions) bool {
		return len(o.Reference) == 1 && o.Reference[0] == 0.7
	})).Return([]byte("swapped"), nil)

	s := NewFaceSwapper(eng, Deps{Request: req})
	require.NoError(t, s.ProcessFrameSet(context.Background(), req.SourcePath, frames))
	for _, f := range frames {
		assert.Equal(t, "swapped", readFile(t, f))
	}
	eng.AssertNumberOfCalls(t, "Swap", 5)
	require.NoError(t, s.PostProcess(context.Background()))
}

func TestFaceSwapper_ProcessFrameSet_NoFaceFramesUntouched(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "clip.mp4")
	req.Options.ManyFaces = true
	frames := writeFrames(t, t.TempDir(), 3)

	eng := &mockEngine{}
	eng.On("Swap", mock.Anything, mock.Anything, []byte(frameName(1)), mock.Anything).Return(nil, engine.ErrNoFace)
	eng.On("Swap", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]byte("swapped"), nil)

	require.NoError(t, NewFaceSwapper(eng, Deps{Request: req}).ProcessFrameSet(context.Background(), req.SourcePath, frames))
	assert.Equal(t, "swapped", readFile(t, frames[0]))
	assert.Equal(t, frameName(1), readFile(t, frames[1]))
	assert.Equal(t, "swapped", readFile(t, frames[2]))
}

func TestFaceSwapper_ProcessImage_NoFaceLeavesTarget(t *testing.T) {
	tests := []struct {
		name  string
		setup func(eng *mockEngine)
		many  bool
	}{
		{"no reference face", func(eng *mockEngine) {
			eng.On("ReferenceFace", mock.Anything, mock.Anything, 0).Return(engine.Face{}, engine.ErrNoFace)
		}, false},
		{"swap finds no face", func(eng *mockEngine) {
			eng.On("Swap", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, engine.ErrNoFace)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			req := swapperRequest(t, dir, "photo.png")
			req.Options.ManyFaces = tt.many
			output := filepath.Join(dir, "swapped_photo.png")

			eng := &mockEngine{}
			tt.setup(eng)

			s := NewFaceSwapper(eng, Deps{Request: req})
			require.NoError(t, s.ProcessImage(context.Background(), req.SourcePath, req.TargetPath, req.TargetPath))
			assert.Equal(t, "target", readFile(t, req.TargetPath))

			require.NoError(t, s.ProcessImage(context.Background(), req.SourcePath, req.TargetPath, output))
			assert.Equal(t, "target", readFile(t, output))
			if !tt.many {
				eng.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestFaceSwapper_ProcessFrameSet_NoReferenceFace(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "clip.mp4")
	frames := writeFrames(t, t.TempDir(), 3)

	eng := &mockEngine{}
	eng.On("ReferenceFace", mock.Anything, []byte(frameName(0)), 0).Return(engine.Face{}, engine.ErrNoFace)

	require.NoError(t, NewFaceSwapper(eng, Deps{Request: req}).ProcessFrameSet(context.Background(), req.SourcePath, frames))
	for i, f := range frames {
		assert.Equal(t, frameName(i), readFile(t, f))
	}
	eng.AssertNotCalled(t, "Swap", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFaceEnhancer(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "clip.mp4")
	frames := writeFrames(t, t.TempDir(), 4)

	eng := &mockEngine{}
	eng.On("ModelStatus", mock.Anything, engine.ModelEnhancer).Return(true, nil)
	eng.On("Enhance", mock.Anything, []byte(frameName(2)), 8).Return(nil, engine.ErrNoFace)
	eng.On("Enhance", mock.Anything, mock.Anything, 8).Return([]byte("sharp"), nil)

	e := NewFaceEnhancer(eng, Deps{Request: req})
	require.NoError(t, e.PreCheck(context.Background()))
	require.NoError(t, e.PreStart(context.Background()))
	require.NoError(t, e.ProcessFrameSet(context.Background(), req.SourcePath, frames))

	assert.Equal(t, "sharp", readFile(t, frames[0]))
	assert.Equal(t, frameName(2), readFile(t, frames[2]))
	require.NoError(t, e.PostProcess(context.Background()))
}

func TestFaceEnhancer_ProcessImage(t *testing.T) {
	dir := t.TempDir()
	req := swapperRequest(t, dir, "photo.png")
	output := filepath.Join(dir, "out.png")

	eng := &mockEngine{}
	eng.On("Enhance", mock.Anything, []byte("target"), 8).Return([]byte("sharp"), nil)

	require.NoError(t, NewFaceEnhancer(eng, Deps{Request: req}).ProcessImage(context.Background(), req.SourcePath, req.TargetPath, output))
	assert.Equal(t, "sharp", readFile(t, output))
}
