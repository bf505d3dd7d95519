package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maauso/faceswap/internal/job"
	"github.com/maauso/faceswap/internal/media"
	"github.com/maauso/faceswap/internal/processor"
	"github.com/maauso/faceswap/internal/safety"
	"github.com/maauso/faceswap/internal/storage"
)

// markerProcessor appends "|<id>" to every file it processes.
type markerProcessor struct {
	id          processor.ID
	preCheckErr error
	preStartErr error
	processErr  error
	onProcess   func(ctx context.Context)

	mu            sync.Mutex
	preChecked    int
	preStarted    int
	processed     int
	postProcessed int
	seen          []job.FrameSet
}

func (m *markerProcessor) ID() processor.ID { return m.id }

func (m *markerProcessor) PreCheck(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preChecked++
	return m.preCheckErr
}

func (m *markerProcessor) PreStart(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preStarted++
	return m.preStartErr
}

func (m *markerProcessor) ProcessImage(ctx context.Context, _, input, output string) error {
	if m.onProcess != nil {
		m.onProcess(ctx)
	}
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
	if m.processErr != nil {
		return m.processErr
	}
	return m.mark(input, output)
}

func (m *markerProcessor) ProcessFrameSet(ctx context.Context, _ string, frames job.FrameSet) error {
	if m.onProcess != nil {
		m.onProcess(ctx)
	}
	m.mu.Lock()
	m.processed++
	m.seen = append(m.seen, append(job.FrameSet(nil), frames...))
	m.mu.Unlock()
	if m.processErr != nil {
		return m.processErr
	}
	for _, f := range frames {
		if err := m.mark(f, f); err != nil {
			return err
		}
	}
	return nil
}

func (m *markerProcessor) PostProcess(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postProcessed++
	return nil
}

func (m *markerProcessor) mark(input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, append(data, []byte("|"+string(m.id))...), 0600)
}

type fakeGate struct {
	verdict    safety.Verdict
	err        error
	imageCalls int
	videoCalls int
	lastTarget string
}

func (g *fakeGate) ClassifyImage(_ context.Context, path string) (safety.Verdict, error) {
	g.imageCalls++
	g.lastTarget = path
	return g.verdict, g.err
}

func (g *fakeGate) ClassifyVideo(_ context.Context, path string) (safety.Verdict, error) {
	g.videoCalls++
	g.lastTarget = path
	return g.verdict, g.err
}

// fakeMedia writes frameCount frames on extraction and concatenates the
// frames, one per line, on assembly.
type fakeMedia struct {
	frameCount  int
	detectFPS   float64
	detectErr   error
	extractErr  error
	assembleErr error

	detectCalls   int
	extractFPS    float64
	extractCalls  int
	assembleFPS   float64
	assembleCalls int
	encoder       job.Encoder
}

func (f *fakeMedia) DetectFrameRate(context.Context, string) (float64, error) {
	f.detectCalls++
	return f.detectFPS, f.detectErr
}

func (f *fakeMedia) ExtractFrames(_ context.Context, _, pattern string, fps float64, _ int) error {
	f.extractCalls++
	f.extractFPS = fps
	if f.extractErr != nil {
		return f.extractErr
	}
	for i := 0; i < f.frameCount; i++ {
		if err := os.WriteFile(fmt.Sprintf(pattern, i+1), []byte(fmt.Sprintf("frame%d", i+1)), 0600); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMedia) CreateVideo(_ context.Context, pattern, output string, fps float64, encoder job.Encoder, _ int) error {
	f.assembleCalls++
	f.assembleFPS = fps
	f.encoder = encoder
	if f.assembleErr != nil {
		return f.assembleErr
	}
	var lines []string
	for i := 1; ; i++ {
		data, err := os.ReadFile(fmt.Sprintf(pattern, i))
		if err != nil {
			break
		}
		lines = append(lines, string(data))
	}
	return os.WriteFile(output, []byte(strings.Join(lines, "\n")), 0600)
}

type fakeRestorer struct {
	restoreErr error
	restored   int
	moved      int
	original   string
}

func (r *fakeRestorer) RestoreAudio(_ context.Context, original, video, output string) error {
	r.restored++
	r.original = original
	if r.restoreErr != nil {
		_ = os.WriteFile(output, []byte("partial"), 0600)
		return r.restoreErr
	}
	return os.Rename(video, output)
}

func (r *fakeRestorer) MoveTemp(_ context.Context, video, output string) error {
	r.moved++
	return os.Rename(video, output)
}

type fakePublisher struct {
	url  string
	err  error
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, key, _ string) (string, error) {
	p.keys = append(p.keys, key)
	return p.url, p.err
}

// recordingWorkspaces remembers every workspace it creates.
type recordingWorkspaces struct {
	inner   *storage.Workspaces
	created []*storage.Workspace
}

func (w *recordingWorkspaces) Create(ctx context.Context, jobID string) (*storage.Workspace, error) {
	ws, err := w.inner.Create(ctx, jobID)
	if err == nil {
		w.created = append(w.created, ws)
	}
	return ws, err
}

type harness struct {
	t          *testing.T
	dir        string
	procs      map[string]*markerProcessor
	built      int
	registry   *processor.Registry
	gate       *fakeGate
	media      *fakeMedia
	restorer   *fakeRestorer
	workspaces *recordingWorkspaces
	publisher  storage.Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ws, err := storage.NewWorkspaces(filepath.Join(t.TempDir(), "work"), nil)
	require.NoError(t, err)

	h := &harness{
		t:          t,
		dir:        t.TempDir(),
		procs:      map[string]*markerProcessor{"A": {id: "A"}, "B": {id: "B"}},
		registry:   processor.NewRegistry(),
		gate:       &fakeGate{verdict: safety.Verdict{Safe: true}},
		media:      &fakeMedia{frameCount: 5, detectFPS: 25},
		restorer:   &fakeRestorer{},
		workspaces: &recordingWorkspaces{inner: ws},
	}
	for name, p := range h.procs {
		require.NoError(t, h.registry.Register(processor.ID(name), "marker "+name, func(processor.Deps) (processor.FrameProcessor, error) {
			h.built++
			return p, nil
		}))
	}
	return h
}

func (h *harness) pipeline(opts ...Option) *Pipeline {
	return New(Deps{
		Processors: h.registry,
		Gate:       h.gate,
		Workspaces: h.workspaces,
		Extractor:  h.media,
		Assembler:  h.media,
		Restorer:   h.restorer,
		Publisher:  h.publisher,
	}, append([]Option{WithKindDetector(media.KindFromExtension)}, opts...)...)
}

// request writes source.png and the named target and returns a request for them.
func (h *harness) request(target string, processors ...string) job.Request {
	h.t.Helper()
	source := filepath.Join(h.dir, "source.png")
	require.NoError(h.t, os.WriteFile(source, []byte("source"), 0600))
	targetPath := filepath.Join(h.dir, target)
	require.NoError(h.t, os.WriteFile(targetPath, []byte("target"), 0600))

	return job.Request{
		ID:         "job-test",
		SourcePath: source,
		TargetPath: targetPath,
		Processors: processors,
		Options:    job.DefaultOptions(),
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
