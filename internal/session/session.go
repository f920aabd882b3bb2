// Package session implements the single-active-session lifecycle: the
// legal transition table between Idle, Recording, Transcribing,
// Rewriting, Delivering and Error, and nothing else mutates session
// state once created.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
)

// State is the client-visible lifecycle state of a session.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateRewriting    State = "rewriting"
	StateDelivering   State = "delivering"
	StateError        State = "error"
)

// IsTerminal reports whether no further event advances the state
// without external recovery; Error is the only one of these here
// (Idle is the initial/rest state, not terminal).
func (s State) IsTerminal() bool {
	return s == StateError
}

// Mode selects how a session's transcript is rewritten on completion.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeMemo    Mode = "memo"
	ModeTech    Mode = "tech"
	ModeEmailJP Mode = "email_jp"
	ModeMinutes Mode = "minutes"
)

// DeliverPolicy names where a finished transcript is sent.
type DeliverPolicy string

const DeliverClipboard DeliverPolicy = "clipboard"

// ErrorInfo is attached to a session when it enters StateError.
type ErrorInfo struct {
	Code        domainerr.Code
	Message     string
	Recoverable bool
}

// Session is the single active recording/transcription lifecycle.
type Session struct {
	ID            string
	State         State
	Mode          Mode
	DeliverPolicy DeliverPolicy
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastError     *ErrorInfo
}

// Transition is returned by every successful mutation.
type Transition struct {
	SessionID string
	PrevState State
	NewState  State
}

// Manager owns the single active session and is the sole mutator of
// its state; every other component observes a Snapshot.
type Manager struct {
	mu      sync.Mutex
	current *Session
}

// NewManager creates an empty manager with no active session.
func NewManager() *Manager {
	return &Manager{}
}

// Start replaces any existing session atomically and returns the new
// one's id in Idle state.
func (m *Manager) Start(mode Mode, policy DeliverPolicy) (string, Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	s := &Session{
		ID:            uuid.NewString(),
		State:         StateIdle,
		Mode:          mode,
		DeliverPolicy: policy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.current = s
	return s.ID, *s
}

// Stop discards the active session, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Snapshot returns a copy of the active session, or false if none.
func (m *Manager) Snapshot() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// legalTransitions enumerates (from, event) -> to. Error entries are
// handled separately since "event" (on_error) is legal from any state
// and the recovery outcome depends on the stored ErrorInfo.
var legalTransitions = map[State]map[string]State{
	StateIdle:         {"toggle_recording": StateRecording},
	StateRecording:    {"toggle_recording": StateTranscribing, "pause_recording": StateIdle},
	StateTranscribing: {}, // resolved dynamically by mode in OnTranscriptDone
	StateRewriting:    {"on_rewrite_done": StateDelivering},
	StateDelivering:   {"on_deliver_done": StateIdle},
}

func (m *Manager) transition(to State) (Transition, *domainerr.Error) {
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	prev := m.current.State
	m.current.State = to
	m.current.UpdatedAt = time.Now().UTC()
	return Transition{SessionID: m.current.ID, PrevState: prev, NewState: to}, nil
}

// ToggleRecording applies the toggle_recording event, legal from Idle
// (-> Recording) and Recording (-> Transcribing).
func (m *Manager) ToggleRecording() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	to, ok := legalTransitions[m.current.State]["toggle_recording"]
	if !ok {
		return Transition{}, domainerr.InvalidState("toggle_recording is not legal from " + string(m.current.State))
	}
	return m.transition(to)
}

// PauseRecording applies pause_recording, legal only from Recording.
func (m *Manager) PauseRecording() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	to, ok := legalTransitions[m.current.State]["pause_recording"]
	if !ok {
		return Transition{}, domainerr.InvalidState("pause_recording is not legal from " + string(m.current.State))
	}
	return m.transition(to)
}

// OnTranscriptDone applies on_transcript_done, legal only from
// Transcribing; routes to Delivering for raw mode or Rewriting
// otherwise.
func (m *Manager) OnTranscriptDone() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	if m.current.State != StateTranscribing {
		return Transition{}, domainerr.InvalidState("on_transcript_done is not legal from " + string(m.current.State))
	}
	to := StateRewriting
	if m.current.Mode == ModeRaw {
		to = StateDelivering
	}
	return m.transition(to)
}

// OnRewriteDone applies on_rewrite_done, legal only from Rewriting.
func (m *Manager) OnRewriteDone() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	to, ok := legalTransitions[StateRewriting]["on_rewrite_done"]
	if !ok || m.current.State != StateRewriting {
		return Transition{}, domainerr.InvalidState("on_rewrite_done is not legal from " + string(m.current.State))
	}
	return m.transition(to)
}

// OnDeliverDone applies on_deliver_done, legal only from Delivering.
func (m *Manager) OnDeliverDone() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	if m.current.State != StateDelivering {
		return Transition{}, domainerr.InvalidState("on_deliver_done is not legal from " + string(m.current.State))
	}
	return m.transition(StateIdle)
}

// OnError is legal from any state and moves the session to Error,
// recording whether recovery is possible.
func (m *Manager) OnError(info ErrorInfo) (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	prev := m.current.State
	m.current.State = StateError
	m.current.LastError = &info
	m.current.UpdatedAt = time.Now().UTC()
	return Transition{SessionID: m.current.ID, PrevState: prev, NewState: StateError}, nil
}

// RecoverFromError applies recover_from_error: legal only from Error,
// and only succeeds if the stored error was recoverable.
func (m *Manager) RecoverFromError() (Transition, *domainerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Transition{}, domainerr.Internal("no active session")
	}
	if m.current.State != StateError {
		return Transition{}, domainerr.InvalidState("recover_from_error is not legal from " + string(m.current.State))
	}
	if m.current.LastError == nil || !m.current.LastError.Recoverable {
		return Transition{}, domainerr.InvalidState("cannot recover from a non-recoverable error")
	}
	m.current.LastError = nil
	return m.transition(StateIdle)
}

// SetMode changes the active session's mode without a state
// transition. Legal in any non-terminal state.
func (m *Manager) SetMode(mode Mode) *domainerr.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domainerr.Internal("no active session")
	}
	if m.current.State.IsTerminal() {
		return domainerr.InvalidState("set_mode is not legal from " + string(m.current.State))
	}
	m.current.Mode = mode
	m.current.UpdatedAt = time.Now().UTC()
	return nil
}
