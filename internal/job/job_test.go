package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func validRequest() Request {
	return Request{
		ID:         "job-1",
		SourcePath: "/in/face.jpg",
		TargetPath: "/in/clip.mp4",
		Processors: []string{"face_swapper"},
		Options:    DefaultOptions(),
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	if !o.KeepFPS {
		t.Error("expected KeepFPS to default to true")
	}
	if o.KeepFrames || o.SkipAudio || o.ManyFaces {
		t.Error("expected KeepFrames, SkipAudio and ManyFaces to default to false")
	}
	if o.SimilarFaceDistance != 0.85 {
		t.Errorf("expected similar face distance 0.85, got %v", o.SimilarFaceDistance)
	}
	if o.TempFrameFormat != FrameFormatPNG || o.TempFrameQuality != 100 {
		t.Errorf("unexpected frame format defaults: %s/%d", o.TempFrameFormat, o.TempFrameQuality)
	}
	if o.OutputVideoEncoder != EncoderX264 || o.OutputVideoQuality != 35 {
		t.Errorf("unexpected encoder defaults: %s/%d", o.OutputVideoEncoder, o.OutputVideoQuality)
	}
	if o.MaxMemoryGB != 60 || o.ExecutionThreads != 8 {
		t.Errorf("unexpected resource defaults: %d/%d", o.MaxMemoryGB, o.ExecutionThreads)
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"empty source", func(r *Request) { r.SourcePath = "" }, true},
		{"empty target", func(r *Request) { r.TargetPath = "" }, true},
		{"no processors", func(r *Request) { r.Processors = nil }, true},
		{"duplicate processors", func(r *Request) { r.Processors = []string{"a", "a"} }, true},
		{"empty processor id", func(r *Request) { r.Processors = []string{""} }, true},
		{"bad frame format", func(r *Request) { r.Options.TempFrameFormat = "gif" }, true},
		{"quality above range", func(r *Request) { r.Options.OutputVideoQuality = 101 }, true},
		{"negative frame quality", func(r *Request) { r.Options.TempFrameQuality = -1 }, true},
		{"unknown encoder", func(r *Request) { r.Options.OutputVideoEncoder = "mpeg2" }, true},
		{"zero threads", func(r *Request) { r.Options.ExecutionThreads = 0 }, true},
		{"negative reference position", func(r *Request) { r.Options.ReferenceFacePosition = -1 }, true},
		{"nvenc encoder", func(r *Request) { r.Options.OutputVideoEncoder = EncoderHEVCNV }, false},
		{"jpg frames", func(r *Request) { r.Options.TempFrameFormat = FrameFormatJPG }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRequest_Output(t *testing.T) {
	r := validRequest()
	if got, want := r.Output(), filepath.Join("/in", "swapped_clip.mp4"); got != want {
		t.Errorf("Output() = %q, want %q", got, want)
	}

	r.OutputPath = "/out/result.mp4"
	if got := r.Output(); got != "/out/result.mp4" {
		t.Errorf("Output() with override = %q", got)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	got := DefaultOutputPath("photo.png")
	if got != "swapped_photo.png" {
		t.Errorf("DefaultOutputPath() = %q", got)
	}
}

func TestFailed_Reason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"invalid request", fmt.Errorf("%w: empty", ErrInvalidRequest), ReasonInvalidRequest},
		{"no frames", fmt.Errorf("%w: %w", ErrExtractionFailed, ErrNoFrames), ReasonNoFrames},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Failed(StageExtract, tt.err)
			if r.Outcome != OutcomeFailed {
				t.Errorf("expected failed outcome, got %s", r.Outcome)
			}
			if r.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", r.Reason, tt.reason)
			}
			if r.OK() {
				t.Error("failed result must not be OK")
			}
		})
	}
}

func TestRejected(t *testing.T) {
	r := Rejected(ReasonNSFW)
	if r.Outcome != OutcomeRejected || r.Reason != ReasonNSFW {
		t.Errorf("unexpected rejected result: %+v", r)
	}
	if !errors.Is(r.Err, ErrContentRejected) {
		t.Errorf("expected ErrContentRejected, got %v", r.Err)
	}
	if r.String() != "rejected: NSFW" {
		t.Errorf("String() = %q", r.String())
	}
}

func TestEncoder_HardwareAccelerated(t *testing.T) {
	for _, e := range Encoders {
		want := e == EncoderH264NV || e == EncoderHEVCNV
		if e.HardwareAccelerated() != want {
			t.Errorf("%s.HardwareAccelerated() = %v", e, !want)
		}
	}
}
