package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/maauso/faceswap/internal/media"
	"github.com/maauso/faceswap/internal/storage"
)

// ErrMissingVideo is returned when the assembled video to finalize does not exist.
var ErrMissingVideo = errors.New("assembled video not found")

// FFmpegRestorer implements Restorer using the ffmpeg CLI.
type FFmpegRestorer struct {
	ffmpegPath string
	prober     media.Prober
	logger     *slog.Logger
}

var _ Restorer = (*FFmpegRestorer)(nil)

// NewFFmpegRestorer creates a new FFmpegRestorer.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// A nil prober skips the audio stream check.
func NewFFmpegRestorer(ffmpegPath string, prober media.Prober, logger *slog.Logger) *FFmpegRestorer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegRestorer{ffmpegPath: ffmpegPath, prober: prober, logger: logger}
}

// RestoreAudio copies the video stream and takes audio from the original target.
func (r *FFmpegRestorer) RestoreAudio(ctx context.Context, original, video, output string) error {
	if _, err := os.Stat(video); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingVideo, video)
	}

	if r.prober != nil {
		hasAudio, err := r.prober.HasAudio(ctx, original)
		if err != nil {
			return fmt.Errorf("probe audio: %w", err)
		}
		if !hasAudio {
			r.logger.Info("target has no audio stream, moving video into place",
				slog.String("target", original),
			)
			return r.MoveTemp(ctx, video, output)
		}
	}

	return writeVia(output, func(staging string) error {
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-i", video,
			"-i", original,
			"-c:v", "copy",
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-y", staging,
		}

		// #nosec G204 - ffmpegPath is set by the application, not user input
		cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
			}
			return &media.FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
		}
		return nil
	})
}

// MoveTemp renames video to output, copying across filesystems when a rename is not possible.
func (r *FFmpegRestorer) MoveTemp(ctx context.Context, video, output string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if _, err := os.Stat(video); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingVideo, video)
	}

	err := os.Rename(video, output)
	if err == nil {
		return nil
	}
	r.logger.Debug("rename failed, copying instead", slog.String("error", err.Error()))

	if err := writeVia(output, func(staging string) error {
		return storage.CopyFile(video, staging)
	}); err != nil {
		return fmt.Errorf("move video: %w", err)
	}
	if err := os.Remove(video); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove moved video", slog.String("path", video), slog.String("error", err.Error()))
	}
	return nil
}

// writeVia lets write fill a staging file next to output and renames it
// into place on success. output is never left partially written.
func writeVia(output string, write func(staging string) error) error {
	// The staging name keeps the extension so ffmpeg picks the same muxer.
	f, err := os.CreateTemp(filepath.Dir(output), ".faceswap-*"+filepath.Ext(output))
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	staging := f.Name()
	_ = f.Close()

	if err := write(staging); err != nil {
		_ = os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, output); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
