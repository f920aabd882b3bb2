// Package service is the application façade: it composes the session
// state machine, the store, the output router, and an optional running
// pipeline behind one command surface and one outward event channel,
// exactly as the client-facing shell is meant to depend on a single
// entry point rather than reaching into the components directly.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/sibukixxx/voicetypeless/internal/capture"
	"github.com/sibukixxx/voicetypeless/internal/domainerr"
	"github.com/sibukixxx/voicetypeless/internal/jobqueue"
	"github.com/sibukixxx/voicetypeless/internal/metrics"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
	"github.com/sibukixxx/voicetypeless/internal/output"
	"github.com/sibukixxx/voicetypeless/internal/pipeline"
	"github.com/sibukixxx/voicetypeless/internal/post"
	"github.com/sibukixxx/voicetypeless/internal/rewrite"
	"github.com/sibukixxx/voicetypeless/internal/segsink"
	"github.com/sibukixxx/voicetypeless/internal/session"
	"github.com/sibukixxx/voicetypeless/internal/store"
	"github.com/sibukixxx/voicetypeless/internal/stt"
	"github.com/sibukixxx/voicetypeless/internal/vad"
)

// EventKind enumerates the outward event stream a UI shell subscribes
// to; field meanings mirror §6's outbound event table.
type EventKind int

const (
	EventSessionStateChanged EventKind = iota
	EventAudioLevel
	EventTranscriptPartial
	EventTranscriptFinal
	EventRewriteDone
	EventDeliverDone
	EventError
)

// Event carries whichever payload fields apply to Kind.
type Event struct {
	Kind      EventKind
	SessionID string
	PrevState session.State
	NewState  session.State
	Timestamp time.Time

	RMS float32

	Text       string
	Confidence *float64
	SegmentID  string
	Mode       session.Mode
	Target     string

	Err *domainerr.Error
}

// Service composes C5-C11 behind one façade.
type Service struct {
	sessions *session.Manager
	store    *store.Store
	router   *output.Router
	sttReg   *stt.Registry
	rewriter *rewrite.Engine
	metrics  *metrics.Metrics
	jobs     *jobqueue.Queue

	segmentDir string

	events chan Event

	mu          sync.Mutex
	pipeline    *pipeline.Pipeline
	lastSegment string // segment_id of the most recent transcript, for rewrite_last/deliver_last
	lastText    string
}

// cancelHandle adapts a context.CancelFunc to jobqueue.TaskHandle so an
// in-flight rewrite/deliver call can be preemptively aborted in addition
// to its cooperative cancel-channel check.
type cancelHandle struct{ cancel context.CancelFunc }

func (h cancelHandle) Abort() { h.cancel() }

// watchCancel derives a cancellable context from ctx and wires it so
// that a close of cancelCh (the job queue's one-shot cooperative signal)
// cancels it too; the returned cancel must still be called by the
// caller to release the watcher goroutine on normal completion.
func watchCancel(ctx context.Context, cancelCh <-chan struct{}) (context.Context, context.CancelFunc) {
	jobCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-cancelCh:
			cancel()
		case <-jobCtx.Done():
		}
	}()
	return jobCtx, cancel
}

// Deps bundles the concrete backends wired in at startup.
type Deps struct {
	Store      *store.Store
	Router     *output.Router
	SttReg     *stt.Registry
	Rewriter   *rewrite.Engine
	SegmentDir string
}

// New assembles a Service over the given dependencies.
func New(deps Deps) *Service {
	return &Service{
		sessions:   session.NewManager(),
		store:      deps.Store,
		router:     deps.Router,
		sttReg:     deps.SttReg,
		rewriter:   deps.Rewriter,
		metrics:    metrics.New(),
		jobs:       jobqueue.New(),
		segmentDir: deps.SegmentDir,
		events:     make(chan Event, 256),
	}
}

// Events returns the outward event channel.
func (s *Service) Events() <-chan Event { return s.events }

func (s *Service) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case s.events <- e:
	default:
		obslog.Service().Warn("event channel full, dropping event", "kind", e.Kind)
	}
}

// StartSession creates a session in the state machine, persists its
// row, and bumps sessions_started.
func (s *Service) StartSession(ctx context.Context, mode session.Mode, policy session.DeliverPolicy) (string, error) {
	sessionID, snap := s.sessions.Start(mode, policy)

	if err := s.store.UpsertSession(ctx, store.Session{
		SessionID: sessionID, State: string(snap.State), Mode: string(mode),
		CreatedAt: snap.CreatedAt, UpdatedAt: snap.UpdatedAt,
	}); err != nil {
		return "", err
	}
	s.metrics.IncSessionsStarted()
	return sessionID, nil
}

// StopSession stops any running pipeline and discards the session.
func (s *Service) StopSession() {
	s.mu.Lock()
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	s.sessions.Stop()
}

// ToggleRecording performs the state transition and starts/stops the
// pipeline to match. If starting the pipeline fails, the session is
// reverted to Idle and an error event is emitted rather than leaving
// the session claiming to record with no pipeline behind it.
func (s *Service) ToggleRecording(ctx context.Context, opts PipelineOptions) (session.Transition, error) {
	tr, derr := s.sessions.ToggleRecording()
	if derr != nil {
		return session.Transition{}, derr
	}
	s.persistTransition(ctx)
	s.emitStateChanged(tr)

	switch tr.NewState {
	case session.StateRecording:
		if err := s.startPipeline(ctx, opts); err != nil {
			s.sessions.PauseRecording() // pause_recording is the only Recording->Idle edge
			revertTr := session.Transition{SessionID: tr.SessionID, PrevState: session.StateRecording, NewState: session.StateIdle}
			s.persistTransition(ctx)
			s.emitStateChanged(revertTr)
			s.emit(Event{Kind: EventError, SessionID: tr.SessionID, Err: asDomainErr(err)})
			return session.Transition{}, err
		}
	case session.StateTranscribing:
		s.stopPipeline()
	}
	return tr, nil
}

// PauseRecording performs pause_recording (Recording -> Idle) and
// stops the pipeline.
func (s *Service) PauseRecording(ctx context.Context) (session.Transition, error) {
	tr, derr := s.sessions.PauseRecording()
	if derr != nil {
		return session.Transition{}, derr
	}
	s.persistTransition(ctx)
	s.emitStateChanged(tr)
	s.stopPipeline()
	return tr, nil
}

// SetMode changes the active session's rewrite mode without a state
// transition.
func (s *Service) SetMode(mode session.Mode) error {
	if derr := s.sessions.SetMode(mode); derr != nil {
		return derr
	}
	return nil
}

// PipelineOptions configures the capture/VAD/STT backends for a
// recording run.
type PipelineOptions struct {
	CaptureConfig capture.Config
	VADConfig     vad.Config
	SttEngine     string
	SttContext    stt.Context
}

func (s *Service) startPipeline(ctx context.Context, opts PipelineOptions) error {
	sink, err := segsink.New(s.segmentDir)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		CaptureConfig: opts.CaptureConfig,
		VADConfig:     opts.VADConfig,
		Sink:          sink,
		Engine:        s.sttReg.Select(opts.SttEngine),
		SttContext:    opts.SttContext,
	})
	if err := p.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()

	go s.pumpPipelineEvents(p)
	return nil
}

func (s *Service) stopPipeline() {
	s.mu.Lock()
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// pumpPipelineEvents forwards pipeline events into service events,
// dispatching transcripts through on_pipeline_transcript as they
// arrive. It returns once the pipeline's event channel is closed (at
// Stop).
func (s *Service) pumpPipelineEvents(p *pipeline.Pipeline) {
	for ev := range p.Events() {
		switch ev.Kind {
		case pipeline.EventStateChanged:
			// Pipeline lifecycle states are diagnostic; the session's
			// own state machine is authoritative for session_state_changed.
		case pipeline.EventAudioLevel:
			s.emit(Event{Kind: EventAudioLevel, RMS: ev.Level})
		case pipeline.EventPartialTranscript:
			s.emit(Event{Kind: EventTranscriptPartial, Text: ev.Text, SegmentID: ev.SegmentID})
		case pipeline.EventFinalTranscript:
			s.OnPipelineTranscript(context.Background(), ev.SegmentID, ev.Text, ev.Confidence)
		case pipeline.EventError:
			s.emit(Event{Kind: EventError, Err: ev.Err})
			recoverable := ev.Err == nil || ev.Err.Recoverable
			tr, derr := s.sessions.OnError(session.ErrorInfo{
				Code:        errCode(ev.Err),
				Message:     errMessage(ev.Err),
				Recoverable: recoverable,
			})
			if derr == nil {
				s.persistTransition(context.Background())
				s.emitStateChanged(tr)
			}
		}
	}
}

// OnPipelineTranscript persists a new segment, post-processes its text
// through the dictionary scoped to the session's mode, bumps
// segments_transcribed, and emits transcript_final.
func (s *Service) OnPipelineTranscript(ctx context.Context, segmentID, text string, confidence *float64) (string, error) {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		return "", domainerr.Internal("no active session")
	}

	entries, err := s.store.ListEnabledDictionary(ctx, string(snap.Mode))
	if err != nil {
		return "", err
	}
	dictEntries := make([]post.DictionaryEntry, len(entries))
	for i, e := range entries {
		dictEntries[i] = post.DictionaryEntry{Pattern: e.Pattern, Replacement: e.Replacement}
	}
	processed := post.Process(text, dictEntries)

	conf := 0.0
	if confidence != nil {
		conf = *confidence
	}
	if err := s.store.InsertSegment(ctx, store.Segment{
		SegmentID: segmentID, SessionID: snap.ID, RawText: processed,
		Confidence: conf, CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.lastSegment = segmentID
	s.lastText = processed
	s.mu.Unlock()

	s.metrics.IncSegmentsTranscribed()
	s.emit(Event{Kind: EventTranscriptFinal, SessionID: snap.ID, SegmentID: segmentID, Text: processed, Confidence: confidence})

	tr, derr := s.sessions.OnTranscriptDone()
	if derr == nil {
		s.persistTransition(ctx)
		s.emitStateChanged(tr)
	}
	return processed, nil
}

// RewriteLast dispatches the most recent segment's text through the
// rewrite engine for the given mode and advances the state machine on
// completion. A rewrite failure leaves the segment's raw_text intact
// and the session mutator is not advanced, matching §7's policy that
// the segment remains retryable.
func (s *Service) RewriteLast(ctx context.Context, mode rewrite.Mode) error {
	s.mu.Lock()
	segmentID, text := s.lastSegment, s.lastText
	s.mu.Unlock()

	snap, ok := s.sessions.Snapshot()
	if !ok {
		return domainerr.Internal("no active session")
	}

	jobID, cancelCh := s.jobs.Enqueue(snap.ID, segmentID, jobqueue.KindRewrite)
	jobCtx, cancel := watchCancel(ctx, cancelCh)
	defer cancel()
	s.jobs.SetHandle(jobID, cancelHandle{cancel})
	s.jobs.MarkRunning(jobID)

	start := time.Now()
	out, rerr := s.rewriter.Rewrite(jobCtx, text, mode, nil)
	s.metrics.RecordLatency(time.Since(start).Milliseconds())
	if rerr != nil {
		if jobCtx.Err() != nil {
			// Dropped mid-call via cancel_session: no partial row persisted.
			return domainerr.Internal("rewrite canceled")
		}
		s.jobs.MarkFailed(jobID, rerr.Message)
		s.metrics.IncErrors(domainerr.CodeRewrite)
		s.emit(Event{Kind: EventError, SessionID: snap.ID, SegmentID: segmentID,
			Err: domainerr.Wrap(domainerr.CodeRewrite, true, rerr.Message, rerr)})
		return rerr
	}

	if err := s.onRewriteDone(jobCtx, snap, segmentID, out, mode); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return err
	}
	s.jobs.MarkDone(jobID)
	return nil
}

func (s *Service) onRewriteDone(ctx context.Context, snap session.Session, segmentID, text string, mode rewrite.Mode) error {
	if err := s.store.SetSegmentRewrittenText(ctx, segmentID, text); err != nil {
		return err
	}
	s.mu.Lock()
	if s.lastSegment == segmentID {
		s.lastText = text
	}
	s.mu.Unlock()

	s.metrics.IncSegmentsRewritten()
	s.emit(Event{Kind: EventRewriteDone, SessionID: snap.ID, SegmentID: segmentID, Text: text, Mode: session.Mode(mode)})

	tr, derr := s.sessions.OnRewriteDone()
	if derr != nil {
		return derr
	}
	s.persistTransition(ctx)
	s.emitStateChanged(tr)
	return nil
}

// Deliver writes text to the clipboard and advances Delivering -> Idle.
// It does not paste into the active app; PasteToActiveApp is separate.
func (s *Service) Deliver(ctx context.Context, text string) error {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		return domainerr.Internal("no active session")
	}

	s.mu.Lock()
	segmentID := s.lastSegment
	s.mu.Unlock()

	jobID, cancelCh := s.jobs.Enqueue(snap.ID, segmentID, jobqueue.KindDeliver)
	jobCtx, cancel := watchCancel(ctx, cancelCh)
	defer cancel()
	s.jobs.SetHandle(jobID, cancelHandle{cancel})
	s.jobs.MarkRunning(jobID)

	if jobCtx.Err() != nil {
		return domainerr.Internal("deliver canceled")
	}
	if err := s.router.SetClipboard(text); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return domainerr.Internal("clipboard delivery failed: " + err.Error())
	}
	s.metrics.IncSegmentsDelivered()
	s.emit(Event{Kind: EventDeliverDone, SessionID: snap.ID, Target: "clipboard"})

	tr, derr := s.sessions.OnDeliverDone()
	if derr != nil {
		s.jobs.MarkFailed(jobID, derr.Error())
		return derr
	}
	s.persistTransition(ctx)
	s.emitStateChanged(tr)
	s.jobs.MarkDone(jobID)
	return nil
}

// DeliverLast delivers the most recently produced text (rewritten if
// available, else raw).
func (s *Service) DeliverLast(ctx context.Context) error {
	s.mu.Lock()
	text := s.lastText
	s.mu.Unlock()
	return s.Deliver(ctx, text)
}

// PasteToActiveApp applies the §6 paste decision without mutating
// session state; the caller follows up with Deliver for the clipboard
// fallback path if desired.
func (s *Service) PasteToActiveApp(text string, allowlist []string, pasteConfirm bool) output.Result {
	return s.router.PasteToActiveApp(text, allowlist, pasteConfirm)
}

// GetHistory proxies the store's cursor-paginated session list.
func (s *Service) GetHistory(ctx context.Context, limit int, cursor *string) (store.HistoryPage, error) {
	return s.store.GetHistory(ctx, limit, cursor)
}

// GetSession proxies session detail lookup.
func (s *Service) GetSession(ctx context.Context, sessionID string) (store.SessionDetail, bool, error) {
	return s.store.GetSession(ctx, sessionID)
}

// UpsertDictionary proxies dictionary upsert.
func (s *Service) UpsertDictionary(ctx context.Context, entry store.DictionaryEntry) (string, error) {
	return s.store.UpsertDictionaryEntry(ctx, entry)
}

// ListDictionary proxies dictionary listing.
func (s *Service) ListDictionary(ctx context.Context, scope *string) ([]store.DictionaryEntry, error) {
	return s.store.ListDictionary(ctx, scope)
}

// GetSettings proxies settings load.
func (s *Service) GetSettings(ctx context.Context) (store.Settings, error) {
	return s.store.LoadSettings(ctx)
}

// UpdateSettings proxies settings save.
func (s *Service) UpdateSettings(ctx context.Context, settings store.Settings) error {
	return s.store.SaveSettings(ctx, settings)
}

// CleanupOldData removes segments/sessions older than ttlDays; ttlDays
// == 0 is a no-op, matching "0 = infinite" retention.
func (s *Service) CleanupOldData(ctx context.Context, ttlDays int) (segmentsDeleted, sessionsDeleted int, err error) {
	if ttlDays == 0 {
		return 0, 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -ttlDays)

	segmentsDeleted, err = s.store.DeleteOldSegments(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	sessionsDeleted, err = s.store.DeleteOldSessions(ctx, cutoff)
	if err != nil {
		return segmentsDeleted, 0, err
	}
	return segmentsDeleted, sessionsDeleted, nil
}

// MetricsSummary returns the current metrics snapshot.
func (s *Service) MetricsSummary() metrics.Summary {
	return s.metrics.Summary()
}

// CancelSession cancels every non-terminal rewrite/deliver job belonging
// to the given session and returns the cancelled job ids.
func (s *Service) CancelSession(sessionID string) []string {
	return s.jobs.CancelSession(sessionID)
}

func (s *Service) persistTransition(ctx context.Context) {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		return
	}
	if err := s.store.UpsertSession(ctx, store.Session{
		SessionID: snap.ID, State: string(snap.State), Mode: string(snap.Mode),
		CreatedAt: snap.CreatedAt, UpdatedAt: snap.UpdatedAt,
	}); err != nil {
		obslog.Service().Warn("failed to persist session transition", "session_id", snap.ID, "err", err)
	}
}

func (s *Service) emitStateChanged(tr session.Transition) {
	if tr.NewState == session.StateError {
		s.metrics.IncErrors(domainerr.CodeInternal)
	}
	s.emit(Event{Kind: EventSessionStateChanged, SessionID: tr.SessionID, PrevState: tr.PrevState, NewState: tr.NewState})
}

func asDomainErr(err error) *domainerr.Error {
	if de, ok := domainerr.As(err); ok {
		return de
	}
	return domainerr.Internal(err.Error())
}

func errCode(e *domainerr.Error) domainerr.Code {
	if e == nil {
		return domainerr.CodeInternal
	}
	return e.Code
}

func errMessage(e *domainerr.Error) string {
	if e == nil {
		return "pipeline error"
	}
	return e.Message
}
