// Package vad implements the four-state hysteretic energy-threshold
// voice-activity detector that turns a stream of fixed-size audio
// frames into bounded speech segments.
package vad

import (
	"time"

	"github.com/google/uuid"

	"github.com/sibukixxx/voicetypeless/internal/obslog"
)

// State is one of the four segmenter states.
type State int

const (
	Silence State = iota
	PendingSpeech
	Speaking
	Cooldown
)

func (s State) String() string {
	switch s {
	case Silence:
		return "silence"
	case PendingSpeech:
		return "pending_speech"
	case Speaking:
		return "speaking"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Config bounds segmenter behavior. All fields are hot-swappable via
// UpdateConfig and take effect starting with the next frame.
type Config struct {
	SpeechStartThreshold float32
	SpeechEndThreshold   float32
	SpeechEndSilenceMs   int
	MaxSegmentMs         int
	MinSegmentMs         int
	MinSpeechMs          int
	MinGapMs             int
	SampleRate           int
	FrameSize            int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		SpeechStartThreshold: 0.02,
		SpeechEndThreshold:   0.01,
		SpeechEndSilenceMs:   700,
		MaxSegmentMs:         30000,
		MinSegmentMs:         500,
		MinSpeechMs:          100,
		MinGapMs:             300,
		SampleRate:           16000,
		FrameSize:            320,
	}
}

func (c Config) frameDurationMs() float64 {
	return float64(c.FrameSize) * 1000 / float64(c.SampleRate)
}

// Sink receives a finalized segment's raw samples and returns the path
// it was written to, if any. A non-nil error only means the write
// failed; the caller still proceeds with SegmentReady using the raw
// samples (the spec explicitly keeps transcription possible without a
// WAV file on disk).
type Sink interface {
	Write(segmentID string, samples []float32, sampleRate int) (path string, err error)
}

// EventKind enumerates the segmenter's outward events.
type EventKind int

const (
	EventSpeechStart EventKind = iota
	EventSegmentForceCut
	EventSegmentReady
	EventSegmentDiscarded
)

// Event carries whichever payload is relevant to Kind.
type Event struct {
	Kind EventKind

	// EventSegmentReady
	Segment AudioSegment

	// EventSegmentDiscarded
	DiscardedDurationMs int
}

// AudioSegment is the transient result of a finalized speech segment.
type AudioSegment struct {
	ID         string
	StartedAt  time.Time
	DurationMs int
	SampleRate int
	Channels   int
	PCMFormat  string
	WavPath    string
	Samples    []float32
	Language   string
	Hints      []string
}

// Segmenter drives the four-state machine one frame at a time. It is
// not safe for concurrent use; the pipeline orchestrator owns it from a
// single worker goroutine.
type Segmenter struct {
	cfg  Config
	sink Sink

	state State

	pending      []float32
	pendingMs    float64
	segment      []float32
	segmentMs    float64
	silenceMs    float64
	cooldownMs   float64
	segmentStart time.Time
}

// New creates a segmenter bound to the given segment sink.
func New(cfg Config, sink Sink) *Segmenter {
	return &Segmenter{cfg: cfg, sink: sink, state: Silence}
}

// UpdateConfig swaps in new thresholds effective from the next frame;
// it never retroactively alters a segment already in progress.
func (s *Segmenter) UpdateConfig(cfg Config) {
	s.cfg = cfg
}

// State returns the segmenter's current state, mostly for diagnostics.
func (s *Segmenter) State() State { return s.state }

// Process feeds one frame of samples with its precomputed RMS level and
// returns zero or more events (Speaking can emit both a force-cut and a
// segment-ready event in the same call).
func (s *Segmenter) Process(samples []float32, rms float32) []Event {
	frameMs := s.cfg.frameDurationMs()
	var events []Event

	switch s.state {
	case Silence:
		if rms >= s.cfg.SpeechStartThreshold {
			if s.cfg.MinSpeechMs == 0 {
				s.beginSegment(samples)
				events = append(events, Event{Kind: EventSpeechStart})
			} else {
				s.pending = append(s.pending[:0:0], samples...)
				s.pendingMs = frameMs
				s.state = PendingSpeech
			}
		}

	case PendingSpeech:
		if rms < s.cfg.SpeechEndThreshold {
			s.pending = nil
			s.pendingMs = 0
			s.state = Silence
			break
		}
		s.pending = append(s.pending, samples...)
		s.pendingMs += frameMs
		if s.pendingMs >= float64(s.cfg.MinSpeechMs) {
			s.segmentStart = time.Now()
			s.segment = s.pending
			s.segmentMs = s.pendingMs
			s.pending = nil
			s.pendingMs = 0
			s.silenceMs = 0
			s.state = Speaking
			events = append(events, Event{Kind: EventSpeechStart})
		}

	case Speaking:
		s.segment = append(s.segment, samples...)
		s.segmentMs += frameMs
		if rms < s.cfg.SpeechEndThreshold {
			s.silenceMs += frameMs
		} else {
			s.silenceMs = 0
		}

		if s.segmentMs >= float64(s.cfg.MaxSegmentMs) {
			events = append(events, Event{Kind: EventSegmentForceCut})
			if ev, ok := s.finalize(); ok {
				events = append(events, ev)
			}
			s.enterCooldownOrSilence()
			break
		}

		if s.silenceMs >= float64(s.cfg.SpeechEndSilenceMs) {
			if ev, ok := s.finalize(); ok {
				events = append(events, ev)
			}
			s.enterCooldownOrSilence()
		}

	case Cooldown:
		s.cooldownMs += frameMs
		if s.cooldownMs >= float64(s.cfg.MinGapMs) {
			s.cooldownMs = 0
			s.state = Silence
		}
	}

	return events
}

func (s *Segmenter) beginSegment(samples []float32) {
	s.segmentStart = time.Now()
	s.segment = append([]float32(nil), samples...)
	s.segmentMs = s.cfg.frameDurationMs()
	s.silenceMs = 0
	s.state = Speaking
}

func (s *Segmenter) enterCooldownOrSilence() {
	s.segment = nil
	s.segmentMs = 0
	s.silenceMs = 0
	if s.cfg.MinGapMs == 0 {
		s.state = Silence
	} else {
		s.cooldownMs = 0
		s.state = Cooldown
	}
}

// Flush finalizes whatever is in flight when the caller stops capture.
func (s *Segmenter) Flush() []Event {
	switch s.state {
	case Speaking:
		if ev, ok := s.finalize(); ok {
			s.segment = nil
			s.segmentMs = 0
			s.state = Silence
			return []Event{ev}
		}
	case PendingSpeech:
		s.segmentStart = time.Now()
		s.segment = s.pending
		s.segmentMs = s.pendingMs
		s.pending = nil
		s.pendingMs = 0
		if ev, ok := s.finalize(); ok {
			s.segment = nil
			s.segmentMs = 0
			s.state = Silence
			return []Event{ev}
		}
	}
	s.state = Silence
	return nil
}

// finalize computes duration, discards too-short segments, and hands
// samples to the sink. A WAV write failure is logged but does not
// suppress SegmentReady — downstream STT can still consume raw samples.
func (s *Segmenter) finalize() (Event, bool) {
	n := len(s.segment)
	durationMs := n * 1000 / s.cfg.SampleRate

	if durationMs < s.cfg.MinSegmentMs {
		return Event{Kind: EventSegmentDiscarded, DiscardedDurationMs: durationMs}, true
	}

	id := uuid.NewString()
	seg := AudioSegment{
		ID:         id,
		StartedAt:  s.segmentStart,
		DurationMs: durationMs,
		SampleRate: s.cfg.SampleRate,
		Channels:   1,
		PCMFormat:  "s16le",
		Samples:    s.segment,
	}

	if s.sink != nil {
		path, err := s.sink.Write(id, s.segment, s.cfg.SampleRate)
		if err != nil {
			obslog.Pipeline().Warn("segment sink write failed, proceeding with in-memory samples", "segment_id", id, "err", err)
		} else {
			seg.WavPath = path
		}
	}

	return Event{Kind: EventSegmentReady, Segment: seg}, true
}
