// Package pipeline runs one face swap job end to end: preflight, the content
// safety gate, then either the image path or the video path of extract,
// process, assemble and audio restore.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/maauso/faceswap/internal/audio"
	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/job/id"
	"github.com/maauso/faceswap/internal/media"
	"github.com/maauso/faceswap/internal/metrics"
	"github.com/maauso/faceswap/internal/processor"
	"github.com/maauso/faceswap/internal/safety"
	"github.com/maauso/faceswap/internal/storage"
)

// ErrBusy is returned when a job is submitted while another one is running.
var ErrBusy = errors.New("pipeline busy")

// Processors resolves processor IDs into a per-job chain.
// *processor.Registry satisfies it.
type Processors interface {
	Validate(ids []string) error
	Chain(ids []string, deps processor.Deps) (processor.Chain, error)
}

// WorkspaceFactory creates per-job scratch directories.
// *storage.Workspaces satisfies it.
type WorkspaceFactory interface {
	Create(ctx context.Context, jobID string) (*storage.Workspace, error)
}

// Deps are the collaborators of a Pipeline. Publisher is optional.
type Deps struct {
	Processors Processors
	Gate       safety.Gate
	Workspaces WorkspaceFactory
	Extractor  media.FrameExtractor
	Assembler  media.VideoAssembler
	Restorer   audio.Restorer
	Publisher  storage.Publisher
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFailurePolicy sets how processor failures are handled.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(pl *Pipeline) {
		pl.policy = p
	}
}

// WithMaxFrameFailureRatio sets the share of frames a processor may fail on.
func WithMaxFrameFailureRatio(r float64) Option {
	return func(pl *Pipeline) {
		pl.maxFrameFailureRatio = r
	}
}

// WithDefaultFPS sets the frame rate used when the target's rate is not kept.
func WithDefaultFPS(fps float64) Option {
	return func(pl *Pipeline) {
		if fps > 0 {
			pl.defaultFPS = fps
		}
	}
}

// WithProgress sets the per-frame progress callback passed to processors.
func WithProgress(fn processor.ProgressFunc) Option {
	return func(pl *Pipeline) {
		pl.progress = fn
	}
}

// WithKindDetector overrides how the target is classified as image or video.
func WithKindDetector(fn func(path string) media.Kind) Option {
	return func(pl *Pipeline) {
		pl.detectKind = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// Pipeline executes jobs one at a time.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer

	policy               FailurePolicy
	maxFrameFailureRatio float64
	defaultFPS           float64
	progress             processor.ProgressFunc
	detectKind           func(path string) media.Kind

	mu sync.Mutex
}

// New creates a Pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		deps:       deps,
		logger:     slog.Default(),
		tracer:     otel.Tracer("pipeline"),
		policy:     FailFast,
		defaultFPS: job.DefaultFPS,
		detectKind: media.DetectKind,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Processors returns the processor catalog the pipeline resolves chains from.
func (p *Pipeline) Processors() Processors {
	return p.deps.Processors
}

// Run executes req and returns its tagged result. A request submitted while
// another job runs fails immediately with ErrBusy.
func (p *Pipeline) Run(ctx context.Context, req job.Request) job.Result {
	if !p.mu.TryLock() {
		return job.Failed(job.StagePreflight, ErrBusy)
	}
	defer p.mu.Unlock()

	if req.ID == "" {
		req.ID = id.Generate()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("job.id", req.ID),
		attribute.String("job.target", req.TargetPath),
	))
	defer span.End()

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()
	start := time.Now()

	r := &run{
		p:      p,
		req:    req,
		state:  StateInit,
		logger: p.logger.With(slog.String("job_id", req.ID)),
	}
	r.logger.Info("job started",
		slog.String("source", req.SourcePath),
		slog.String("target", req.TargetPath),
		slog.Any("processors", req.Processors),
	)

	res := r.execute(ctx)
	res.JobID = req.ID

	metrics.JobsTotal.WithLabelValues(string(res.Outcome)).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.String("job.outcome", string(res.Outcome)))
	if res.Outcome == job.OutcomeFailed {
		span.SetStatus(codes.Error, res.Reason)
	}

	r.logger.Info("job finished",
		slog.String("outcome", string(res.Outcome)),
		slog.String("stage", string(res.Stage)),
		slog.String("reason", res.Reason),
		slog.Duration("duration", time.Since(start)),
	)
	return res
}

// run is the state of one job execution.
type run struct {
	p      *Pipeline
	req    job.Request
	state  State
	kind   media.Kind
	logger *slog.Logger
}

func (r *run) transition(to State) error {
	if err := checkTransition(r.state, to); err != nil {
		return err
	}
	r.logger.Debug("state transition", slog.String("from", string(r.state)), slog.String("to", string(to)))
	r.state = to
	return nil
}

func (r *run) fail(stage job.Stage, err error) job.Result {
	r.state = StateDone
	r.logger.Error("job failed", slog.String("stage", string(stage)), slog.String("error", err.Error()))
	return job.Failed(stage, err)
}

// begin starts a span and timer for stage; the returned func ends both.
func (r *run) begin(ctx context.Context, stage job.Stage) (context.Context, func()) {
	ctx, span := r.p.tracer.Start(ctx, "stage."+string(stage))
	start := time.Now()
	return ctx, func() {
		span.End()
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

func (r *run) execute(ctx context.Context) job.Result {
	if err := r.transition(StatePreflight); err != nil {
		return r.fail(job.StagePreflight, err)
	}
	chain, err := r.preflight(ctx)
	if err != nil {
		return r.fail(job.StagePreflight, err)
	}

	if err := r.transition(StateSafetyGate); err != nil {
		return r.fail(job.StageSafety, err)
	}
	if res, ok := r.safetyGate(ctx); !ok {
		return res
	}

	if r.kind == media.KindImage {
		if err := r.transition(StateImagePath); err != nil {
			return r.fail(job.StageImage, err)
		}
		return r.imagePath(ctx, chain)
	}

	if err := r.transition(StateVideoPath); err != nil {
		return r.fail(job.StageExtract, err)
	}
	return r.videoPath(ctx, chain)
}

// preflight validates the request and readies every processor. Nothing is
// written to disk before it succeeds.
func (r *run) preflight(ctx context.Context) (processor.Chain, error) {
	ctx, end := r.begin(ctx, job.StagePreflight)
	defer end()

	req := r.req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := r.p.deps.Processors.Validate(req.Processors); err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrInvalidRequest, err)
	}
	for _, path := range []string{req.SourcePath, req.TargetPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %w", job.ErrInvalidRequest, err)
		}
	}
	if filepath.Clean(req.Output()) == filepath.Clean(req.TargetPath) {
		return nil, fmt.Errorf("%w: output path must differ from target", job.ErrInvalidRequest)
	}

	r.kind = r.p.detectKind(req.TargetPath)
	if r.kind != media.KindImage && r.kind != media.KindVideo {
		return nil, fmt.Errorf("%w: unsupported target %s", job.ErrInvalidRequest, req.TargetPath)
	}

	chain, err := r.p.deps.Processors.Chain(req.Processors, processor.Deps{
		Request:              req,
		Logger:               r.logger,
		Progress:             r.p.progress,
		MaxFrameFailureRatio: r.p.maxFrameFailureRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrPreflightFailed, err)
	}

	for _, proc := range chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled: %w", err)
		}
		if err := proc.PreCheck(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s pre-check: %w", job.ErrPreflightFailed, proc.ID(), err)
		}
		if err := proc.PreStart(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s pre-start: %w", job.ErrPreflightFailed, proc.ID(), err)
		}
	}
	return chain, nil
}

// safetyGate classifies the target. It returns ok=false with the terminal
// result when the job must stop.
func (r *run) safetyGate(ctx context.Context) (job.Result, bool) {
	ctx, end := r.begin(ctx, job.StageSafety)
	defer end()

	var (
		verdict safety.Verdict
		err     error
	)
	if r.kind == media.KindImage {
		verdict, err = r.p.deps.Gate.ClassifyImage(ctx, r.req.TargetPath)
	} else {
		verdict, err = r.p.deps.Gate.ClassifyVideo(ctx, r.req.TargetPath)
	}
	if err != nil {
		return r.fail(job.StageSafety, fmt.Errorf("%w: %w", job.ErrSafetyCheckFailed, err)), false
	}

	if !verdict.Safe {
		r.state = StateDone
		r.logger.Warn("target rejected by safety gate",
			slog.Float64("score", verdict.Score),
			slog.Int("frames", verdict.Frames),
		)
		return job.Rejected(job.ReasonNSFW), false
	}
	return job.Result{}, true
}

// imagePath copies the target to the output and lets each processor rewrite it in place.
func (r *run) imagePath(ctx context.Context, chain processor.Chain) job.Result {
	ctx, end := r.begin(ctx, job.StageImage)
	defer end()

	out := r.req.Output()
	if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
		return r.fail(job.StageImage, fmt.Errorf("%w: create output dir: %w", job.ErrProcessingFailed, err))
	}
	if err := storage.CopyFile(r.req.TargetPath, out); err != nil {
		return r.fail(job.StageImage, fmt.Errorf("%w: copy target: %w", job.ErrProcessingFailed, err))
	}

	warnings, err := r.runChain(ctx, chain, func(ctx context.Context, proc processor.FrameProcessor) error {
		return proc.ProcessImage(ctx, r.req.SourcePath, out, out)
	})
	if err != nil {
		return r.fail(job.StageImage, err)
	}

	res := job.Success(out)
	res.Warnings = warnings
	res.FrameCount = 1
	return r.publish(ctx, res)
}

// videoPath extracts frames into a workspace, processes them, and assembles
// the output at the same frame rate used for extraction.
func (r *run) videoPath(ctx context.Context, chain processor.Chain) job.Result {
	opts := r.req.Options
	deps := r.p.deps

	ws, err := deps.Workspaces.Create(ctx, r.req.ID)
	if err != nil {
		return r.fail(job.StageExtract, fmt.Errorf("%w: %w", job.ErrExtractionFailed, err))
	}
	if opts.KeepFrames {
		ws.Retain()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			r.logger.Warn("workspace cleanup failed", slog.String("error", err.Error()))
		}
	}()

	fps := r.p.defaultFPS
	if opts.KeepFPS {
		detected, err := deps.Extractor.DetectFrameRate(ctx, r.req.TargetPath)
		if err != nil {
			r.logger.Warn("frame rate detection failed, using default",
				slog.Float64("fps", fps),
				slog.String("error", err.Error()),
			)
		} else {
			fps = detected
		}
	}
	r.logger.Info("video job", slog.Float64("fps", fps), slog.String("workspace", ws.Dir()))

	pattern := ws.FramePattern(opts.TempFrameFormat)
	frames, err := r.extract(ctx, ws, pattern, fps)
	if err != nil {
		return r.fail(job.StageExtract, err)
	}

	pctx, end := r.begin(ctx, job.StageProcess)
	warnings, err := r.runChain(pctx, chain, func(ctx context.Context, proc processor.FrameProcessor) error {
		return proc.ProcessFrameSet(ctx, r.req.SourcePath, frames)
	})
	end()
	if err != nil {
		return r.fail(job.StageProcess, err)
	}

	temp := ws.TempOutputPath(filepath.Ext(r.req.TargetPath))
	actx, end := r.begin(ctx, job.StageAssemble)
	err = deps.Assembler.CreateVideo(actx, pattern, temp, fps, opts.OutputVideoEncoder, opts.OutputVideoQuality)
	end()
	if err != nil {
		return r.fail(job.StageAssemble, fmt.Errorf("%w: %w", job.ErrAssemblyFailed, err))
	}

	out := r.req.Output()
	if err := r.finalize(ctx, temp, out); err != nil {
		return r.fail(job.StageAudio, fmt.Errorf("%w: %w", job.ErrAudioRestoreFailed, err))
	}

	res := job.Success(out)
	res.Warnings = warnings
	res.FrameCount = frames.Len()
	res.FPS = fps
	return r.publish(ctx, res)
}

func (r *run) extract(ctx context.Context, ws *storage.Workspace, pattern string, fps float64) (job.FrameSet, error) {
	ctx, end := r.begin(ctx, job.StageExtract)
	defer end()

	opts := r.req.Options
	if err := r.p.deps.Extractor.ExtractFrames(ctx, r.req.TargetPath, pattern, fps, opts.TempFrameQuality); err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrExtractionFailed, err)
	}
	frames, err := ws.Frames(opts.TempFrameFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrExtractionFailed, err)
	}
	if frames.Len() == 0 {
		return nil, job.ErrNoFrames
	}
	r.logger.Info("frames extracted", slog.Int("count", frames.Len()))
	return frames, nil
}

// finalize moves the assembled video to out, restoring audio unless skipped.
func (r *run) finalize(ctx context.Context, temp, out string) error {
	ctx, end := r.begin(ctx, job.StageAudio)
	defer end()

	if err := os.MkdirAll(filepath.Dir(out), 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var err error
	if r.req.Options.SkipAudio {
		err = r.p.deps.Restorer.MoveTemp(ctx, temp, out)
	} else {
		err = r.p.deps.Restorer.RestoreAudio(ctx, r.req.TargetPath, temp, out)
	}
	if err != nil {
		// A failed job never leaves a truncated artifact at the output path.
		if rmErr := os.Remove(out); rmErr != nil && !os.IsNotExist(rmErr) {
			r.logger.Warn("failed to remove partial output", slog.String("path", out), slog.String("error", rmErr.Error()))
		}
	}
	return err
}

// runChain applies fn to each processor in order and then runs PostProcess
// on every processor, whatever happened before.
func (r *run) runChain(ctx context.Context, chain processor.Chain, fn func(context.Context, processor.FrameProcessor) error) ([]string, error) {
	defer r.postProcess(ctx, chain)

	var warnings []string
	for _, proc := range chain {
		if err := ctx.Err(); err != nil {
			return warnings, fmt.Errorf("cancelled before %s: %w", proc.ID(), err)
		}

		start := time.Now()
		err := fn(ctx, proc)
		r.logger.Debug("processor finished",
			slog.String("processor", string(proc.ID())),
			slog.Duration("duration", time.Since(start)),
		)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return warnings, fmt.Errorf("cancelled in %s: %w", proc.ID(), ctxErr)
		}

		err = fmt.Errorf("%w: %s: %w", job.ErrProcessingFailed, proc.ID(), err)
		if r.p.policy != BestEffort {
			return warnings, err
		}
		r.logger.Warn("processor failed, continuing",
			slog.String("processor", string(proc.ID())),
			slog.String("error", err.Error()),
		)
		warnings = append(warnings, err.Error())
	}
	return warnings, nil
}

func (r *run) postProcess(ctx context.Context, chain processor.Chain) {
	ctx = context.WithoutCancel(ctx)
	for _, proc := range chain {
		if err := proc.PostProcess(ctx); err != nil {
			r.logger.Warn("post-process failed",
				slog.String("processor", string(proc.ID())),
				slog.String("error", err.Error()),
			)
		}
	}
}

// publish uploads the output when a publisher is configured. On failure the
// local output is kept and reported.
func (r *run) publish(ctx context.Context, res job.Result) job.Result {
	r.state = StateDone
	if r.p.deps.Publisher == nil {
		return res
	}

	ctx, end := r.begin(ctx, job.StagePublish)
	defer end()

	key := r.req.ID + "/" + filepath.Base(res.OutputPath)
	url, err := r.p.deps.Publisher.Publish(ctx, key, res.OutputPath)
	if err != nil {
		failed := r.fail(job.StagePublish, fmt.Errorf("%w: %w", job.ErrPublishFailed, err))
		failed.OutputPath = res.OutputPath
		return failed
	}
	res.URL = url
	r.logger.Info("output published", slog.String("url", url))
	return res
}
