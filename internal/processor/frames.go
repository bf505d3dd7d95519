package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/metrics"
)

// FrameFunc transforms the frame at index. It must leave the file untouched on error.
type FrameFunc func(ctx context.Context, index int, path string) error

// FrameRun configures RunFrames.
type FrameRun struct {
	ID              ID
	Threads         int
	MaxFailureRatio float64
	Progress        ProgressFunc
	Logger          *slog.Logger
}

// RunFrames applies fn to every frame with at most Threads frames in flight.
// A failed frame is logged and keeps its previous content; when the failed
// share exceeds MaxFailureRatio the stage fails with ErrFrameFailures.
// Cancellation stops scheduling new frames and returns ctx.Err().
func RunFrames(ctx context.Context, frames job.FrameSet, cfg FrameRun, fn FrameFunc) error {
	total := frames.Len()
	if total == 0 {
		return nil
	}

	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	var (
		mu       sync.Mutex
		failed   int
		firstErr error

		// progressMu orders Progress calls so done is reported in sequence.
		progressMu sync.Mutex
		done       int
	)

	for i, path := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, i, path); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("frame failed",
					slog.String("processor", string(cfg.ID)),
					slog.Int("frame", i),
					slog.String("error", err.Error()),
				)
				metrics.FrameFailuresTotal.WithLabelValues(string(cfg.ID)).Inc()
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			metrics.FramesProcessedTotal.WithLabelValues(string(cfg.ID)).Inc()
			progressMu.Lock()
			done++
			if cfg.Progress != nil {
				cfg.Progress(cfg.ID, done, total)
			}
			progressMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if failed > 0 && float64(failed)/float64(total) > cfg.MaxFailureRatio {
		return fmt.Errorf("%w: %d of %d frames: %w", ErrFrameFailures, failed, total, firstErr)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never observe a partial frame.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp frame: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp frame: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace frame: %w", err)
	}
	return nil
}
