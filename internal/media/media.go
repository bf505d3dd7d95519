// Package media wraps the ffmpeg and ffprobe CLIs used to split a target
// video into frames and assemble processed frames back into a video.
package media

import (
	"context"

	"github.com/maauso/faceswap/internal/job"
)

// FrameExtractor turns a video into numbered frame images.
type FrameExtractor interface {
	// DetectFrameRate returns the frame rate of the first video stream.
	DetectFrameRate(ctx context.Context, path string) (float64, error)

	// ExtractFrames writes every frame of target, resampled to fps, to files
	// matching pattern (e.g. <dir>/%04d.png). quality is 0..100.
	ExtractFrames(ctx context.Context, target, pattern string, fps float64, quality int) error
}

// VideoAssembler encodes numbered frame images into a video.
type VideoAssembler interface {
	// CreateVideo encodes frames matching pattern at fps into output.
	// quality is 0..100; it is mapped to the encoder's CRF or CQ scale.
	CreateVideo(ctx context.Context, pattern, output string, fps float64, encoder job.Encoder, quality int) error
}

// FrameSampler extracts a sparse subset of frames, used for content classification.
type FrameSampler interface {
	// SampleFrames writes one frame out of every interval into dir, at most
	// limit frames when limit > 0, and returns their paths in order.
	SampleFrames(ctx context.Context, video, dir string, interval, limit int) ([]string, error)
}

// Prober reports stream information.
type Prober interface {
	// HasAudio reports whether path has at least one audio stream.
	HasAudio(ctx context.Context, path string) (bool, error)
}

var (
	_ FrameExtractor = (*FFmpeg)(nil)
	_ VideoAssembler = (*FFmpeg)(nil)
	_ FrameSampler   = (*FFmpeg)(nil)
	_ Prober         = (*FFmpeg)(nil)
)
