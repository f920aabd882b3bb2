package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sibukixxx/voicetypeless/internal/capture"
	"github.com/sibukixxx/voicetypeless/internal/stt"
	"github.com/sibukixxx/voicetypeless/internal/vad"
)

type fakeSink struct {
	writes int
}

func (f *fakeSink) Write(segmentID string, samples []float32, sampleRate int) (string, error) {
	f.writes++
	return "/tmp/" + segmentID + ".wav", nil
}

type fakeEngine struct {
	text string
}

func (f *fakeEngine) Transcribe(_ context.Context, audio stt.Audio, _ stt.Context) (stt.Transcript, *stt.Error) {
	return stt.Transcript{Text: f.text}, nil
}
func (f *fakeEngine) SupportsPartial() bool { return false }
func (f *fakeEngine) Name() string          { return "fake" }

type failingEngine struct{}

func (failingEngine) Transcribe(context.Context, stt.Audio, stt.Context) (stt.Transcript, *stt.Error) {
	return stt.Transcript{}, stt.ErrorPermissionDenied("mic permission revoked")
}
func (failingEngine) SupportsPartial() bool { return false }
func (failingEngine) Name() string          { return "failing" }

func newTestPipeline(engine stt.Engine, sink vad.Sink) *Pipeline {
	cfg := vad.DefaultConfig()
	cfg.MinSpeechMs = 0 // speech starts on the first above-threshold frame, no pending window
	p := New(Options{
		VADConfig: cfg,
		Sink:      sink,
		Engine:    engine,
	})
	ctx, cancel := context.WithCancel(context.Background())
	p.gctx = ctx
	p.cancel = cancel
	return p
}

func frameOf(rms float32, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = rms
	}
	return s
}

func drainEvents(t *testing.T, p *Pipeline) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case ev := <-p.events:
			out = append(out, ev)
		case <-time.After(10 * time.Millisecond):
			return out
		}
	}
}

func TestPipelineDispatchesSegmentToSTT(t *testing.T) {
	sink := &fakeSink{}
	engine := &fakeEngine{text: "hello world"}
	p := newTestPipeline(engine, sink)

	loud := frameOf(0.5, 320)
	quiet := frameOf(0.0, 320)

	p.processFrame(capture.Frame{Samples: loud, RMS: 0.5})
	for i := 0; i < 40; i++ {
		p.processFrame(capture.Frame{Samples: quiet, RMS: 0.0})
	}

	events := drainEvents(t, p)
	var gotFinal bool
	for _, ev := range events {
		if ev.Kind == EventFinalTranscript {
			gotFinal = true
			if ev.Text != "hello world" {
				t.Errorf("text = %q, want %q", ev.Text, "hello world")
			}
		}
	}
	if !gotFinal {
		t.Fatal("expected a FinalTranscript event")
	}
	if sink.writes != 1 {
		t.Errorf("sink.writes = %d, want 1", sink.writes)
	}
}

func TestPipelineNonRecoverableSttErrorDropsToIdle(t *testing.T) {
	p := newTestPipeline(failingEngine{}, &fakeSink{})

	loud := frameOf(0.5, 320)
	quiet := frameOf(0.0, 320)
	p.processFrame(capture.Frame{Samples: loud, RMS: 0.5})
	for i := 0; i < 40; i++ {
		p.processFrame(capture.Frame{Samples: quiet, RMS: 0.0})
	}

	events := drainEvents(t, p)
	var gotError bool
	for _, ev := range events {
		if ev.Kind == EventError {
			gotError = true
		}
	}
	if !gotError {
		t.Fatal("expected an Error event")
	}
	// PermissionDenied is non-recoverable: the pipeline should have
	// dropped to Idle rather than staying in Listening.
	if p.State() != StateIdle {
		t.Errorf("state = %v, want idle after a non-recoverable stt error", p.State())
	}
}

func TestPipelineTooShortBurstIsDiscardedNotDispatched(t *testing.T) {
	engine := &fakeEngine{text: "should not appear"}
	p := newTestPipeline(engine, &fakeSink{})
	// Raise MinSegmentMs above what a single burst accumulates before
	// the default 700ms silence timeout finalizes it, so this burst
	// is discarded rather than dispatched.
	p.seg.UpdateConfig(func() vad.Config {
		c := vad.DefaultConfig()
		c.MinSpeechMs = 0
		c.MinSegmentMs = 1000
		return c
	}())

	loud := frameOf(0.5, 320)
	quiet := frameOf(0.0, 320)
	p.processFrame(capture.Frame{Samples: loud, RMS: 0.5})
	for i := 0; i < 40; i++ {
		p.processFrame(capture.Frame{Samples: quiet, RMS: 0.0})
	}

	events := drainEvents(t, p)
	for _, ev := range events {
		if ev.Kind == EventFinalTranscript {
			t.Fatalf("did not expect a transcript for a discarded segment, got %q", ev.Text)
		}
	}
}
