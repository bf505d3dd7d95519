package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/maauso/faceswap/internal/job"
)

// framePattern is the printf pattern ffmpeg uses for frame files.
const framePattern = "%04d"

// Workspaces creates per-job scratch directories under a root directory.
type Workspaces struct {
	root   string
	logger *slog.Logger
}

// NewWorkspaces creates a new Workspaces rooted at root.
// If root is empty, <os.TempDir()>/faceswap is used.
// The directory is created if it doesn't exist.
func NewWorkspaces(root string, logger *slog.Logger) (*Workspaces, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "faceswap")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &Workspaces{root: root, logger: logger}, nil
}

// Root returns the directory workspaces are created in.
func (w *Workspaces) Root() string {
	return w.root
}

// Create makes a new exclusive workspace for jobID. Two calls never
// return the same directory, even for the same job ID.
func (w *Workspaces) Create(ctx context.Context, jobID string) (*Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if jobID == "" {
		jobID = "job"
	}
	dir, err := os.MkdirTemp(w.root, sanitize(jobID)+"_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	w.logger.Debug("workspace created", slog.String("job_id", jobID), slog.String("dir", dir))
	return &Workspace{dir: dir, logger: w.logger}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, s)
}

// Workspace is a scratch directory owned by exactly one job.
type Workspace struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	removed  bool
	retained bool
}

// Dir returns the workspace directory.
func (ws *Workspace) Dir() string {
	return ws.dir
}

// FramePattern returns the ffmpeg output pattern for frames of the given format,
// e.g. <dir>/%04d.png.
func (ws *Workspace) FramePattern(format job.FrameFormat) string {
	return filepath.Join(ws.dir, framePattern+"."+string(format))
}

// TempOutputPath returns the path of the intermediate video, before audio is restored.
func (ws *Workspace) TempOutputPath(ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(ws.dir, "temp"+ext)
}

// Frames lists the extracted frames of the given format ordered by their
// numeric index, not lexically.
func (ws *Workspace) Frames(format job.FrameFormat) (job.FrameSet, error) {
	matches, err := filepath.Glob(filepath.Join(ws.dir, "*."+string(format)))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}

	type indexed struct {
		n    int
		path string
	}
	frames := make([]indexed, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		n, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		frames = append(frames, indexed{n: n, path: m})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].n < frames[j].n })

	set := make(job.FrameSet, len(frames))
	for i, f := range frames {
		set[i] = f.path
	}
	return set, nil
}

// Retain marks the workspace to be kept; Cleanup becomes a no-op.
func (ws *Workspace) Retain() {
	if ws == nil {
		return
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.retained = true
}

// Cleanup removes the workspace and everything in it. It is safe to call
// on a nil workspace and more than once.
func (ws *Workspace) Cleanup() error {
	if ws == nil {
		return nil
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.removed {
		return nil
	}
	if ws.retained {
		ws.logger.Info("keeping workspace", slog.String("dir", ws.dir))
		return nil
	}
	if err := os.RemoveAll(ws.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove workspace %s: %w", ws.dir, err)
	}
	ws.removed = true
	return nil
}

// CopyFile copies src to dst byte for byte, preserving the file mode.
func CopyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod destination file: %w", err)
	}
	return nil
}
