// Package stt defines the abstract speech-to-text capability the
// pipeline dispatches segments to, plus the selection-and-fallback
// policy that guarantees the pipeline always advances.
package stt

import (
	"context"
	"time"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
)

// DefaultTimeout is the default STT call timeout.
const DefaultTimeout = 30 * time.Second

// Transcript is the transient result of a transcribe call. Its Text is
// not post-processed; that is the post-processor's job.
type Transcript struct {
	Text          string
	Confidence    *float64
	IsPartial     bool
	TokenProbs    []float64
	WordTimings   []WordTiming
}

// WordTiming is one word's span within the source audio.
type WordTiming struct {
	Word       string
	StartMs    int
	EndMs      int
}

// Audio is the segment payload handed to a transcriber.
type Audio struct {
	SegmentID  string
	SampleRate int
	Channels   int
	WavPath    string
	Samples    []float32
	Language   string
	Hints      []string
}

// Context carries an optional language override and extra hints that
// are merged with Audio.Hints; Context hints win on conflict.
type Context struct {
	Language *string
	Hints    []string
}

// Merge combines audio-level and context-level hints, with context
// entries taking precedence over audio entries sharing the same key
// (hints here are free-form strings, so "precedence" means context
// hints come first and audio duplicates of them are dropped).
func (c Context) Merge(audio Audio) (language string, hints []string) {
	language = audio.Language
	if c.Language != nil {
		language = *c.Language
	}

	seen := make(map[string]bool, len(c.Hints))
	for _, h := range c.Hints {
		seen[h] = true
	}
	hints = append(hints, c.Hints...)
	for _, h := range audio.Hints {
		if !seen[h] {
			hints = append(hints, h)
		}
	}
	return language, hints
}

// ErrorKind enumerates the STT error taxonomy.
type ErrorKind int

const (
	ErrAudioFormat ErrorKind = iota
	ErrEngineNotAvailable
	ErrTranscriptionFailed
	ErrTimeout
	ErrNoSpeech
	ErrPermissionDenied
)

// Error is an STT-specific error carrying its recoverability.
type Error struct {
	Kind        ErrorKind
	Message     string
	Recoverable bool
}

func (e *Error) Error() string { return e.Message }

func newErr(kind ErrorKind, recoverable bool, message string) *Error {
	return &Error{Kind: kind, Message: message, Recoverable: recoverable}
}

func ErrorAudioFormat(msg string) *Error       { return newErr(ErrAudioFormat, false, msg) }
func ErrorEngineUnavailable(msg string) *Error { return newErr(ErrEngineNotAvailable, false, msg) }
func ErrorTranscriptionFailed(msg string) *Error {
	return newErr(ErrTranscriptionFailed, true, msg)
}
func ErrorTimeout(msg string) *Error         { return newErr(ErrTimeout, true, msg) }
func ErrorNoSpeech(msg string) *Error        { return newErr(ErrNoSpeech, true, msg) }
func ErrorPermissionDenied(msg string) *Error { return newErr(ErrPermissionDenied, false, msg) }

// ToDomain maps an STT error onto the application-wide error taxonomy.
func (e *Error) ToDomain() *domainerr.Error {
	switch e.Kind {
	case ErrPermissionDenied:
		return domainerr.Permission(e.Message)
	case ErrEngineNotAvailable:
		return domainerr.SttUnavailable(e.Message)
	case ErrTimeout:
		return domainerr.Timeout(e.Message)
	default:
		return domainerr.Wrap(domainerr.CodeSttUnavailable, e.Recoverable, e.Message, e)
	}
}

// Engine is the abstract STT capability every backend implements.
type Engine interface {
	Transcribe(ctx context.Context, audio Audio, sttCtx Context) (Transcript, *Error)
	SupportsPartial() bool
	Name() string
}

// NoopEngine is the always-available fallback: it returns a fixed
// empty-ish transcript so the pipeline can always advance even with no
// concrete backend configured.
type NoopEngine struct{}

func (NoopEngine) Transcribe(_ context.Context, audio Audio, _ Context) (Transcript, *Error) {
	return Transcript{Text: "", Confidence: nil, IsPartial: false}, nil
}
func (NoopEngine) SupportsPartial() bool { return false }
func (NoopEngine) Name() string          { return "noop" }

// Registry resolves a configured engine name to a concrete Engine,
// falling back to NoopEngine when the requested one is unavailable.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry builds a registry seeded with the given named engines.
// "noop" is always present even if not explicitly supplied.
func NewRegistry(named map[string]Engine) *Registry {
	engines := make(map[string]Engine, len(named)+1)
	for k, v := range named {
		engines[k] = v
	}
	if _, ok := engines["noop"]; !ok {
		engines["noop"] = NoopEngine{}
	}
	return &Registry{engines: engines}
}

// Select returns the requested engine, or the no-op fallback (with a
// warning logged) if it is not registered.
func (r *Registry) Select(name string) Engine {
	if e, ok := r.engines[name]; ok {
		return e
	}
	obslog.STT().Warn("requested stt engine unavailable, falling back to noop", "engine", name)
	return r.engines["noop"]
}
