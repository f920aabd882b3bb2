// Package rewrite defines the abstract text-rewriting capability used
// to turn a raw transcript into a mode-specific polished version.
package rewrite

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout is the default rewrite call timeout.
const DefaultTimeout = 30 * time.Second

// Mode selects the rewrite style. Raw is a sentinel meaning "no
// rewrite"; dispatching it always yields ErrNotAvailable.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeMemo    Mode = "memo"
	ModeTech    Mode = "tech"
	ModeEmailJP Mode = "email_jp"
	ModeMinutes Mode = "minutes"
)

// systemPrompts holds the mode-specific instruction given to the
// rewrite backend. Hints are prepended as a "do not alter" preface.
var systemPrompts = map[Mode]string{
	ModeMemo:    "Remove filler words and restructure the text as concise bullet points.",
	ModeTech:    "Lightly clean the text for readability but preserve code snippets, identifiers, and technical terms verbatim.",
	ModeEmailJP: "Rewrite the text as a polite Japanese business email.",
	ModeMinutes: "Rewrite the text as meeting minutes with Decisions, TODOs, and Discussion sections.",
}

// ErrorKind enumerates the rewrite error taxonomy.
type ErrorKind int

const (
	ErrNotAvailable ErrorKind = iota
	ErrRewriteTimeout
	ErrRewriteFailed
)

// Error is a rewrite-specific error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotAvailable() *Error { return &Error{Kind: ErrNotAvailable, Message: "rewrite not available for raw mode"} }
func TimeoutErr() *Error    { return &Error{Kind: ErrRewriteTimeout, Message: "rewrite call timed out"} }
func Failed(msg string) *Error { return &Error{Kind: ErrRewriteFailed, Message: msg} }

// Backend is the abstract capability a concrete rewrite implementation
// (a cloud LLM call, a local model) provides.
type Backend interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Engine dispatches rewrite requests to a Backend according to Mode,
// applying the mode's system prompt and hint preface.
type Engine struct {
	backend Backend
	timeout time.Duration
}

// New wires an Engine to the given backend with the default timeout.
func New(backend Backend) *Engine {
	return &Engine{backend: backend, timeout: DefaultTimeout}
}

// WithTimeout returns a copy of the engine using the given timeout.
func (e *Engine) WithTimeout(d time.Duration) *Engine {
	return &Engine{backend: e.backend, timeout: d}
}

// Rewrite dispatches text through mode's prompt, with hints prepended
// as a preservation preface. Raw always returns ErrNotAvailable without
// calling the backend.
func (e *Engine) Rewrite(ctx context.Context, text string, mode Mode, hints []string) (string, *Error) {
	if mode == ModeRaw {
		return "", NotAvailable()
	}

	prompt, ok := systemPrompts[mode]
	if !ok {
		return "", Failed("unknown rewrite mode: " + string(mode))
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	if len(hints) > 0 {
		b.WriteString("Do not alter these terms: ")
		b.WriteString(strings.Join(hints, ", "))
		b.WriteString("\n\n")
	}
	b.WriteString(text)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.backend.Rewrite(callCtx, b.String())
	if err != nil {
		if callCtx.Err() != nil {
			return "", TimeoutErr()
		}
		return "", Failed(err.Error())
	}
	return out, nil
}

// NoopBackend always fails with "not configured"; it is the default
// wired in when no concrete rewrite backend (cloud LLM, local model)
// has been provided, matching the spec's stance that concrete rewrite
// backends are an external collaborator.
type NoopBackend struct{}

func (NoopBackend) Rewrite(_ context.Context, _ string) (string, error) {
	return "", Failed("no rewrite backend configured")
}
func (NoopBackend) Name() string { return "noop" }
