// Package audio carries the target's soundtrack over to the assembled video.
package audio

import "context"

// Restorer finalizes an assembled, silent video into the output path.
type Restorer interface {
	// RestoreAudio muxes the first audio stream of original with the video
	// stream of video into output. Targets with no audio stream are moved
	// into place unchanged.
	RestoreAudio(ctx context.Context, original, video, output string) error

	// MoveTemp moves video to output without touching its streams.
	MoveTemp(ctx context.Context, video, output string) error
}
