// Package pipeline binds the capture device, VAD segmenter, and STT
// port into one runnable worker: it owns the realtime callback thread
// on one side and a cooperative worker goroutine on the other, and
// publishes its lifecycle as a channel of Events.
package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sibukixxx/voicetypeless/internal/capture"
	"github.com/sibukixxx/voicetypeless/internal/domainerr"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
	"github.com/sibukixxx/voicetypeless/internal/stt"
	"github.com/sibukixxx/voicetypeless/internal/vad"
)

// State is the pipeline's observable lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateCapturing
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// EventKind enumerates the pipeline's outward event stream.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventAudioLevel
	EventPartialTranscript
	EventFinalTranscript
	EventError
)

// Event carries whichever payload is relevant to Kind.
type Event struct {
	Kind  EventKind
	State State
	Level float32

	SegmentID  string
	Text       string
	Confidence *float64

	Err *domainerr.Error
}

// Options configures a single pipeline run.
type Options struct {
	CaptureConfig capture.Config
	VADConfig     vad.Config
	Sink          vad.Sink
	Engine        stt.Engine
	SttContext    stt.Context
}

// Pipeline runs one capture→VAD→STT session from Start to Stop. It is
// single-use: call New for each recording, discard after Stop returns.
type Pipeline struct {
	opts   Options
	device *capture.Device
	seg    *vad.Segmenter
	events chan Event

	mu    sync.Mutex
	state State

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc

	frames chan capture.Frame
	devErr chan capture.Event
}

// New constructs a pipeline bound to the given device and VAD configs;
// it does not start capture until Start is called.
func New(opts Options) *Pipeline {
	return &Pipeline{
		opts:   opts,
		seg:    vad.New(opts.VADConfig, opts.Sink),
		events: make(chan Event, 64),
		frames: make(chan capture.Frame, 32),
		devErr: make(chan capture.Event, 4),
	}
}

// Events returns the pipeline's event channel; it is closed once Stop
// has fully drained the worker.
func (p *Pipeline) Events() <-chan Event { return p.events }

// Start opens the capture device and launches the worker goroutine.
func (p *Pipeline) Start(ctx context.Context) error {
	device, err := capture.New(p.opts.CaptureConfig)
	if err != nil {
		return err
	}
	p.device = device

	gctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(gctx)
	p.group = group
	p.gctx = gctx
	p.cancel = cancel

	if err := device.Start(p.onFrame, p.onDeviceEvent); err != nil {
		cancel()
		device.Close()
		p.emit(Event{Kind: EventError, Err: asDomainErr(err)})
		return err
	}

	p.setState(StateListening)
	group.Go(p.run)
	return nil
}

// onFrame is invoked on PortAudio's realtime thread; it must not block,
// so frames are dropped (not queued indefinitely) if the worker falls
// behind rather than backpressuring the audio callback.
func (p *Pipeline) onFrame(f capture.Frame) {
	select {
	case p.frames <- f:
	default:
		obslog.Pipeline().Warn("worker falling behind, dropping frame")
	}
}

func (p *Pipeline) onDeviceEvent(e capture.Event) {
	select {
	case p.devErr <- e:
	default:
	}
}

// run is the single cooperative worker goroutine: it owns the VAD
// segmenter and dispatches finished segments to STT. It reads frames
// and device events off channels, and touches the device directly only
// to attempt TryReconnect after a device event other than NoInput.
func (p *Pipeline) run() error {
	for {
		select {
		case <-p.gctx.Done():
			return p.drainAndFlush()

		case ev := <-p.devErr:
			if ev.Kind == capture.EventNoInput {
				continue
			}
			if name, rerr := p.device.TryReconnect(); rerr == nil {
				obslog.Pipeline().Warn("capture device error, reconnected", "device", name, "err", ev.Err)
				continue
			}
			p.emit(Event{Kind: EventError, Err: ev.Err})
			p.setState(StateIdle)
			return ev.Err

		case f := <-p.frames:
			p.emit(Event{Kind: EventAudioLevel, Level: f.RMS})
			p.processFrame(f)
		}
	}
}

func (p *Pipeline) processFrame(f capture.Frame) {
	events := p.seg.Process(f.Samples, f.RMS)
	p.handleVADEvents(events)
}

func (p *Pipeline) handleVADEvents(events []vad.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case vad.EventSpeechStart:
			p.setState(StateCapturing)
		case vad.EventSegmentForceCut:
			obslog.Pipeline().Info("segment force-cut at max duration")
		case vad.EventSegmentDiscarded:
			obslog.Pipeline().Debug("segment discarded, too short", "duration_ms", ev.DiscardedDurationMs)
			p.setState(StateListening)
		case vad.EventSegmentReady:
			p.setState(StateProcessing)
			p.transcribe(ev.Segment)
			// A non-recoverable STT error has already dropped to Idle.
			if p.State() == StateProcessing {
				p.setState(StateListening)
			}
		}
	}
}

func (p *Pipeline) transcribe(seg vad.AudioSegment) {
	audio := stt.Audio{
		SegmentID:  seg.ID,
		SampleRate: seg.SampleRate,
		Channels:   seg.Channels,
		WavPath:    seg.WavPath,
		Samples:    seg.Samples,
		Language:   seg.Language,
		Hints:      seg.Hints,
	}

	callCtx, cancel := context.WithTimeout(p.gctx, stt.DefaultTimeout)
	defer cancel()

	transcript, sttErr := p.opts.Engine.Transcribe(callCtx, audio, p.opts.SttContext)
	if sttErr != nil {
		de := sttErr.ToDomain()
		p.emit(Event{Kind: EventError, SegmentID: seg.ID, Err: de})
		if !de.Recoverable {
			p.setState(StateIdle)
		}
		return
	}

	kind := EventFinalTranscript
	if transcript.IsPartial {
		kind = EventPartialTranscript
	}
	p.emit(Event{
		Kind:       kind,
		SegmentID:  seg.ID,
		Text:       transcript.Text,
		Confidence: transcript.Confidence,
	})
}

// drainAndFlush empties any frames still queued, flushes the VAD for a
// tail segment, and transcribes it before the worker exits.
func (p *Pipeline) drainAndFlush() error {
drain:
	for {
		select {
		case f := <-p.frames:
			p.processFrame(f)
		default:
			break drain
		}
	}

	for _, ev := range p.seg.Flush() {
		p.handleVADEvents([]vad.Event{ev})
	}
	return nil
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.emit(Event{Kind: EventStateChanged, State: s})
}

// State returns the pipeline's current observable state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) emit(e Event) {
	select {
	case p.events <- e:
	default:
		obslog.Pipeline().Warn("event channel full, dropping event", "kind", e.Kind)
	}
}

// Stop signals the worker to drain, flush, and process any tail
// segment, waits for it to exit, then closes the capture device and
// the event channel.
func (p *Pipeline) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	var workerErr error
	if p.group != nil {
		workerErr = p.group.Wait()
	}
	if p.device != nil {
		_ = p.device.Close()
	}
	p.setState(StateIdle)
	close(p.events)
	return workerErr
}

func asDomainErr(err error) *domainerr.Error {
	if de, ok := domainerr.As(err); ok {
		return de
	}
	return domainerr.Internal(err.Error())
}
