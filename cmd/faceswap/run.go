package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/faceswap/internal/bootstrap"
	"github.com/maauso/faceswap/internal/config"
	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/pipeline"
	"github.com/maauso/faceswap/internal/processor"
	"github.com/maauso/faceswap/internal/tracing"
)

// ErrJobFailed is returned when the job does not succeed.
var ErrJobFailed = errors.New("job did not succeed")

// runFlags mirrors job.Request plus the overrides of environment config.
type runFlags struct {
	source     string
	target     string
	output     string
	processors []string
	options    job.Options
	encoder    string
	format     string

	engineURL     string
	tempDir       string
	failurePolicy string
	noProgress    bool
}

var runOpts = runFlags{options: job.DefaultOptions()}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one face swap job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	o := &runOpts.options
	d := job.DefaultOptions()

	f.StringVarP(&runOpts.source, "source", "s", "", "Image providing the face")
	f.StringVarP(&runOpts.target, "target", "t", "", "Image or video to modify")
	f.StringVarP(&runOpts.output, "output", "o", "", "Output path (default: swapped_<target> next to the target)")
	f.StringSliceVarP(&runOpts.processors, "processor", "p", []string{string(processor.FaceSwapperID)}, "Processors to apply, in order")

	f.BoolVar(&o.KeepFPS, "keep-fps", d.KeepFPS, "Keep the target frame rate")
	f.BoolVar(&o.KeepFrames, "keep-frames", d.KeepFrames, "Keep extracted frames after the job")
	f.BoolVar(&o.SkipAudio, "skip-audio", d.SkipAudio, "Do not restore the target audio")
	f.BoolVar(&o.ManyFaces, "many-faces", d.ManyFaces, "Swap every face instead of the reference face")
	f.IntVar(&o.ReferenceFacePosition, "reference-face-position", d.ReferenceFacePosition, "Position of the reference face")
	f.IntVar(&o.ReferenceFrameNumber, "reference-frame-number", d.ReferenceFrameNumber, "Frame used to pick the reference face")
	f.Float64Var(&o.SimilarFaceDistance, "similar-face-distance", d.SimilarFaceDistance, "Maximum distance to the reference face")
	f.StringVar(&runOpts.format, "temp-frame-format", string(d.TempFrameFormat), "Frame image format (png|jpg)")
	f.IntVar(&o.TempFrameQuality, "temp-frame-quality", d.TempFrameQuality, "Frame image quality (0-100)")
	f.StringVar(&runOpts.encoder, "output-video-encoder", string(d.OutputVideoEncoder), "Video encoder")
	f.IntVar(&o.OutputVideoQuality, "output-video-quality", d.OutputVideoQuality, "Video quality (0-100)")
	f.IntVar(&o.MaxMemoryGB, "max-memory", d.MaxMemoryGB, "Maximum engine memory in GB")
	f.IntVar(&o.ExecutionThreads, "execution-threads", d.ExecutionThreads, "Frames processed in parallel")

	f.StringVar(&runOpts.engineURL, "engine-url", "", "Model engine URL (overrides ENGINE_URL)")
	f.StringVar(&runOpts.tempDir, "temp-dir", "", "Workspace root (overrides TEMP_DIR)")
	f.StringVar(&runOpts.failurePolicy, "failure-policy", "", "fail_fast or best_effort (overrides FAILURE_POLICY)")
	f.BoolVar(&runOpts.noProgress, "no-progress", false, "Hide the progress bar")

	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(runCmd)
}

// request builds the job request from the parsed flags.
func (f runFlags) request() job.Request {
	opts := f.options
	opts.TempFrameFormat = job.FrameFormat(f.format)
	opts.OutputVideoEncoder = job.Encoder(f.encoder)
	return job.Request{
		SourcePath: f.source,
		TargetPath: f.target,
		OutputPath: f.output,
		Processors: f.processors,
		Options:    opts,
	}
}

// apply overrides environment configuration with flags that were set.
func (f runFlags) apply(cfg *config.Config) {
	if f.engineURL != "" {
		cfg.EngineURL = f.engineURL
	}
	if f.tempDir != "" {
		cfg.TempDir = f.tempDir
	}
	if f.failurePolicy != "" {
		cfg.FailurePolicy = f.failurePolicy
	}
}

func runJob(cmd *cobra.Command, f runFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	f.apply(cfg)

	// Logs go to stderr; stdout carries only the output path.
	logger := cfg.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(ctx) }()

	var extra []pipeline.Option
	if !f.noProgress {
		bars := newProgressBars(cmd.ErrOrStderr())
		defer bars.Finish()
		extra = append(extra, pipeline.WithProgress(bars.Update))
	}

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger, extra...)
	if err != nil {
		return err
	}

	res := deps.Pipeline.Run(ctx, f.request())
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrJobFailed, res)
	}

	for _, w := range res.Warnings {
		logger.Warn("degraded result", slog.String("warning", w))
	}
	out := res.OutputPath
	if res.URL != "" {
		out = res.URL
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
