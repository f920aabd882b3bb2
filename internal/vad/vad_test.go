package vad

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

type fakeSink struct {
	fail  bool
	calls int
}

func (f *fakeSink) Write(segmentID string, samples []float32, sampleRate int) (string, error) {
	f.calls++
	if f.fail {
		return "", errFake
	}
	return "/tmp/" + segmentID + ".wav", nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errFake = fakeErr("sink write failed")

func loudFrame(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.1
	}
	return s
}

func quietFrame(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.005
	}
	return s
}

// S2 — VAD segmentation: min_speech_ms = 0, 50 loud frames then 40
// quiet frames should yield exactly one SpeechStart and one
// SegmentReady. The finalized segment spans all 50 loud frames plus
// the 35 trailing silence frames needed to cross SpeechEndSilenceMs
// (700ms), so its duration is 85 frames * 20ms = 1700ms, not just the
// loud burst.
func TestScenarioS2Segmentation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 0
	sink := &fakeSink{}
	seg := New(cfg, sink)

	speechStarts := 0
	var ready []Event

	for i := 0; i < 50; i++ {
		for _, ev := range seg.Process(loudFrame(cfg.FrameSize), 0.1) {
			if ev.Kind == EventSpeechStart {
				speechStarts++
			}
			if ev.Kind == EventSegmentReady {
				ready = append(ready, ev)
			}
		}
	}
	for i := 0; i < 40; i++ {
		for _, ev := range seg.Process(quietFrame(cfg.FrameSize), 0.005) {
			if ev.Kind == EventSpeechStart {
				speechStarts++
			}
			if ev.Kind == EventSegmentReady {
				ready = append(ready, ev)
			}
		}
	}

	if speechStarts != 1 {
		t.Fatalf("SpeechStart count = %d, want 1", speechStarts)
	}
	if len(ready) != 1 {
		t.Fatalf("SegmentReady count = %d, want 1", len(ready))
	}
	got := ready[0].Segment.DurationMs
	if got < 1680 || got > 1720 {
		t.Errorf("duration_ms = %d, want ~1700 (50 loud + 35 trailing-silence frames)", got)
	}
	if ready[0].Segment.WavPath == "" {
		t.Errorf("expected a wav path to be set")
	}
}

// S3 — Noise rejection: min_speech_ms = 200, 2 loud frames then a
// silent one should produce no events and leave the VAD in Silence.
func TestScenarioS3NoiseRejection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 200
	seg := New(cfg, &fakeSink{})

	var allEvents []Event
	for i := 0; i < 2; i++ {
		allEvents = append(allEvents, seg.Process(loudFrame(cfg.FrameSize), 0.1)...)
	}
	allEvents = append(allEvents, seg.Process(quietFrame(cfg.FrameSize), 0.005)...)

	if len(allEvents) != 0 {
		t.Fatalf("expected no events, got %+v", allEvents)
	}
	if seg.State() != Silence {
		t.Errorf("state = %v, want Silence", seg.State())
	}
}

func TestForceCutOnMaxSegment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 0
	cfg.MaxSegmentMs = 200 // 10 frames at 20ms
	cfg.MinSegmentMs = 0   // a 200ms cut is below the 500ms default and would be discarded
	seg := New(cfg, &fakeSink{})

	forceCuts := 0
	ready := 0
	frameCount := 10
	for i := 0; i < frameCount; i++ {
		for _, ev := range seg.Process(loudFrame(cfg.FrameSize), 0.1) {
			switch ev.Kind {
			case EventSegmentForceCut:
				forceCuts++
			case EventSegmentReady:
				ready++
			}
		}
	}

	if forceCuts != 1 {
		t.Errorf("SegmentForceCut count = %d, want 1", forceCuts)
	}
	if ready != 1 {
		t.Errorf("SegmentReady count = %d, want 1", ready)
	}
}

func TestSinkWriteFailureStillEmitsSegmentReady(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 0
	cfg.SpeechEndSilenceMs = 40 // 2 frames
	sink := &fakeSink{fail: true}
	seg := New(cfg, sink)

	var ready []Event
	for i := 0; i < 30; i++ {
		ready = append(ready, filterKind(seg.Process(loudFrame(cfg.FrameSize), 0.1), EventSegmentReady)...)
	}
	for i := 0; i < 5; i++ {
		ready = append(ready, filterKind(seg.Process(quietFrame(cfg.FrameSize), 0.005), EventSegmentReady)...)
	}

	if len(ready) != 1 {
		t.Fatalf("expected exactly one SegmentReady, got %d", len(ready))
	}
	if ready[0].Segment.WavPath != "" {
		t.Errorf("expected empty wav path on sink failure")
	}
	if len(ready[0].Segment.Samples) == 0 {
		t.Errorf("expected raw samples to still be attached")
	}
}

func filterKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestFlushPromotesPendingSpeech(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechMs = 1000 // never naturally reached in this test
	cfg.MinSegmentMs = 0
	seg := New(cfg, &fakeSink{})

	seg.Process(loudFrame(cfg.FrameSize), 0.1)
	if seg.State() != PendingSpeech {
		t.Fatalf("state = %v, want PendingSpeech", seg.State())
	}

	events := seg.Flush()
	found := false
	for _, ev := range events {
		if ev.Kind == EventSegmentReady {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Flush to finalize the pending buffer, got %+v", events)
	}
}

// Invariant 1: duration_ms = floor(n * 1000 / sr) for every finalized
// segment, across a property-generated range of frame counts.
func TestInvariantDurationMsFormula(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := DefaultConfig()
		cfg.MinSpeechMs = 0
		cfg.MinSegmentMs = 0
		cfg.SpeechEndSilenceMs = 40
		seg := New(cfg, &fakeSink{})

		loudFrames := rapid.IntRange(3, 60).Draw(rt, "loud_frames")
		var ready []Event
		for i := 0; i < loudFrames; i++ {
			ready = append(ready, filterKind(seg.Process(loudFrame(cfg.FrameSize), 0.1), EventSegmentReady)...)
		}
		for i := 0; i < 3; i++ {
			ready = append(ready, filterKind(seg.Process(quietFrame(cfg.FrameSize), 0.005), EventSegmentReady)...)
		}

		if len(ready) != 1 {
			rt.Fatalf("expected one segment, got %d", len(ready))
		}
		// The segment holds the loud frames plus the 2 trailing silence
		// frames (40ms) that finalize it.
		n := (loudFrames + 2) * cfg.FrameSize
		want := n * 1000 / cfg.SampleRate
		if ready[0].Segment.DurationMs != want {
			rt.Fatalf("duration_ms = %d, want %d", ready[0].Segment.DurationMs, want)
		}
	})
}

// Invariant 2: hysteresis rejects a loud/silent pair inside the
// min_speech_ms window, for any window size.
func TestInvariantHysteresisRejectsShortBursts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := DefaultConfig()
		cfg.MinSpeechMs = rapid.IntRange(100, 500).Draw(rt, "min_speech_ms")
		seg := New(cfg, &fakeSink{})

		frameMs := cfg.frameDurationMs()
		framesNeeded := int(math.Ceil(float64(cfg.MinSpeechMs) / frameMs))
		shortBurst := rapid.IntRange(1, framesNeeded-1).Draw(rt, "short_burst_frames")

		var speechStarts int
		for i := 0; i < shortBurst; i++ {
			for _, ev := range seg.Process(loudFrame(cfg.FrameSize), 0.1) {
				if ev.Kind == EventSpeechStart {
					speechStarts++
				}
			}
		}
		for _, ev := range seg.Process(quietFrame(cfg.FrameSize), 0.005) {
			if ev.Kind == EventSpeechStart {
				speechStarts++
			}
		}

		if speechStarts != 0 {
			rt.Fatalf("expected no SpeechStart for a %d-frame burst under %d ms threshold, got %d",
				shortBurst, cfg.MinSpeechMs, speechStarts)
		}
	})
}
