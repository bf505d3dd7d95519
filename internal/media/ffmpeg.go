package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maauso/faceswap/internal/job"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrInvalidFrameRate is returned when ffprobe reports a rate that cannot be used.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
	// ErrInvalidInterval is returned when a sampling interval is not positive.
	ErrInvalidInterval = errors.New("invalid sampling interval: must be positive")
)

// FFmpeg implements the media interfaces using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// DetectFrameRate reads r_frame_rate of the first video stream.
// Rational rates such as 30000/1001 are resolved.
func (f *FFmpeg) DetectFrameRate(ctx context.Context, path string) (float64, error) {
	out, err := f.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	return ParseFrameRate(out)
}

// ParseFrameRate parses ffprobe rate output, either "num/den" or a decimal.
func ParseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = strings.TrimSpace(line)
	}

	var rate float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
		}
		rate = n / d
	} else {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
		}
		rate = r
	}

	if rate <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
	}
	return rate, nil
}

// ExtractFrames decodes target into RGB frame images matching pattern.
func (f *FFmpeg) ExtractFrames(ctx context.Context, target, pattern string, fps float64, quality int) error {
	args := []string{
		"-hwaccel", "auto",
		"-i", target,
		"-q:v", strconv.Itoa(FrameQScale(quality)),
		"-pix_fmt", "rgb24",
		"-vf", "fps=" + formatFPS(fps),
		pattern,
	}
	return f.runFFmpeg(ctx, args)
}

// CreateVideo encodes the frames matching pattern into output at fps.
func (f *FFmpeg) CreateVideo(ctx context.Context, pattern, output string, fps float64, encoder job.Encoder, quality int) error {
	if encoder == "" {
		encoder = job.DefaultEncoder
	}

	qualityFlag := "-crf"
	if encoder.HardwareAccelerated() {
		qualityFlag = "-cq"
	}

	args := []string{
		"-hwaccel", "auto",
		"-r", formatFPS(fps),
		"-i", pattern,
		"-c:v", string(encoder),
		qualityFlag, strconv.Itoa(Compression(quality)),
		"-pix_fmt", "yuv420p",
		"-vf", "colorspace=bt709:iall=bt601-6-625:fast=1",
		"-y", output,
	}
	return f.runFFmpeg(ctx, args)
}

// SampleFrames writes every interval-th frame of video to dir as PNG.
func (f *FFmpeg) SampleFrames(ctx context.Context, video, dir string, interval, limit int) ([]string, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}

	args := []string{
		"-i", video,
		"-vf", fmt.Sprintf("select='not(mod(n\\,%d))'", interval),
		"-vsync", "vfr",
	}
	if limit > 0 {
		args = append(args, "-frames:v", strconv.Itoa(limit))
	}
	args = append(args, filepath.Join(dir, "sample_%04d.png"))

	if err := f.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "sample_*.png"))
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// HasAudio reports whether path has at least one audio stream.
func (f *FFmpeg) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := f.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// FrameQScale maps a 0..100 frame quality to ffmpeg's -q:v scale (0..31).
func FrameQScale(quality int) int {
	return clamp(quality, 0, 100) * 31 / 100
}

// Compression maps a 0..100 output quality to the CRF/CQ scale (0..51).
func Compression(quality int) int {
	return (clamp(quality, 0, 100) + 1) * 51 / 100
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func formatFPS(fps float64) string {
	if fps <= 0 {
		fps = job.DefaultFPS
	}
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	args = append([]string{"-hide_banner", "-loglevel", "error"}, args...)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

func (f *FFmpeg) runFFprobe(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}
	return stdout.String(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
