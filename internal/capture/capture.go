// Package capture owns the microphone input stream: device selection,
// mono conversion, resampling to the configured target rate, and
// framing into fixed-size chunks with per-frame RMS.
package capture

import (
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
)

// Config bounds the capture device's runtime behavior.
type Config struct {
	TargetSampleRate int
	TargetChannels   int
	FrameSize        int
	NoInputTimeout   time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		TargetSampleRate: 16000,
		TargetChannels:   1,
		FrameSize:        320,
		NoInputTimeout:   3 * time.Second,
	}
}

// Frame is one fixed-size chunk of mono, resampled audio with its level.
type Frame struct {
	Samples []float32
	RMS     float32
}

// EventKind distinguishes the non-frame events the device can emit.
type EventKind int

const (
	EventDeviceDisconnected EventKind = iota
	EventStreamError
	EventNoInput
)

// Event is a side-channel notification alongside the frame stream.
type Event struct {
	Kind EventKind
	Err  *domainerr.Error
}

// Device owns a single PortAudio input stream and republishes its
// callback data as fixed-size Frames on onFrame, with Events on onEvent.
// onFrame/onEvent are invoked directly from the realtime audio thread and
// must not block or allocate beyond what Device itself reuses.
type Device struct {
	cfg Config

	mu       sync.Mutex
	stream   *portaudio.Stream
	active   bool
	deviceIn *portaudio.DeviceInfo

	onFrame func(Frame)
	onEvent func(Event)

	// reusable accumulators, touched only from the callback goroutine
	nativeRate    float64
	nativeChannel int
	accum         []float32
	zeroFrames    int
	noInputFired  bool
}

// New initializes PortAudio and selects the default input device.
func New(cfg Config) (*Device, error) {
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = DefaultConfig().TargetSampleRate
	}
	if cfg.TargetChannels <= 0 {
		cfg.TargetChannels = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultConfig().FrameSize
	}
	if cfg.NoInputTimeout <= 0 {
		cfg.NoInputTimeout = DefaultConfig().NoInputTimeout
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, domainerr.Permission("failed to initialize audio subsystem: " + err.Error())
	}

	d := &Device{cfg: cfg}
	return d, nil
}

// Start opens the default input stream and begins delivering frames and
// events to the given callbacks until Stop is called.
func (d *Device) Start(onFrame func(Frame), onEvent func(Event)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return domainerr.Internal("capture device already active")
	}

	devIn, err := portaudio.DefaultInputDevice()
	if err != nil {
		return classifyOpenError(err)
	}

	d.onFrame = onFrame
	d.onEvent = onEvent
	d.deviceIn = devIn
	d.nativeRate = devIn.DefaultSampleRate
	d.nativeChannel = devIn.MaxInputChannels
	if d.nativeChannel < 1 {
		d.nativeChannel = 1
	}
	d.accum = d.accum[:0]
	d.zeroFrames = 0
	d.noInputFired = false

	framesPerBuffer := 1024
	stream, err := portaudio.OpenDefaultStream(
		d.nativeChannel, 0, d.nativeRate, framesPerBuffer, d.callback,
	)
	if err != nil {
		return classifyOpenError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return classifyOpenError(err)
	}

	d.stream = stream
	d.active = true
	obslog.Audio().Info("capture started", "device", devIn.Name, "native_rate", d.nativeRate)
	return nil
}

// Stop closes the current stream. Safe to call when already stopped.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active || d.stream == nil {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return domainerr.Device("failed to stop audio stream: " + err.Error())
	}
	if err := d.stream.Close(); err != nil {
		return domainerr.Device("failed to close audio stream: " + err.Error())
	}
	d.stream = nil
	d.active = false
	obslog.Audio().Info("capture stopped")
	return nil
}

// Close stops the stream and releases the PortAudio initialization made
// by New. Call once per Device when done with it.
func (d *Device) Close() error {
	d.Stop()
	return portaudio.Terminate()
}

// IsActive reports whether a stream is currently open.
func (d *Device) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// TryReconnect stops the current stream, reselects the default input
// device, and rebuilds the stream, returning the new device name.
func (d *Device) TryReconnect() (string, error) {
	onFrame, onEvent := d.onFrame, d.onEvent
	_ = d.Stop()
	if err := d.Start(onFrame, onEvent); err != nil {
		return "", err
	}
	d.mu.Lock()
	name := ""
	if d.deviceIn != nil {
		name = d.deviceIn.Name
	}
	d.mu.Unlock()
	return name, nil
}

// callback runs on PortAudio's realtime thread: it never blocks. Each
// call allocates the mono/resampled buffers and one output slice per
// emitted frame; accum grows by append as samples arrive.
func (d *Device) callback(in, _ []float32) {
	mono := ToMono(in, d.nativeChannel)
	resampled := Resample(mono, int(d.nativeRate), d.cfg.TargetSampleRate)
	d.accum = append(d.accum, resampled...)

	for len(d.accum) >= d.cfg.FrameSize {
		frameSamples := make([]float32, d.cfg.FrameSize)
		copy(frameSamples, d.accum[:d.cfg.FrameSize])
		d.accum = d.accum[d.cfg.FrameSize:]

		level := RMS(frameSamples)
		d.trackNoInput(level)

		if d.onFrame != nil {
			d.onFrame(Frame{Samples: frameSamples, RMS: level})
		}
	}
}

const noInputDBFSThreshold = 0.000015849 // approx -96 dBFS linear RMS

func (d *Device) trackNoInput(rms float32) {
	framesPerSecond := float64(d.cfg.TargetSampleRate) / float64(d.cfg.FrameSize)
	noInputFrames := int(d.cfg.NoInputTimeout.Seconds() * framesPerSecond)

	if rms <= noInputDBFSThreshold {
		d.zeroFrames++
		if !d.noInputFired && noInputFrames > 0 && d.zeroFrames >= noInputFrames {
			d.noInputFired = true
			if d.onEvent != nil {
				d.onEvent(Event{Kind: EventNoInput})
			}
		}
	} else {
		d.zeroFrames = 0
		d.noInputFired = false
	}
}

var disconnectSubstrings = []string{
	"disconnect", "removed", "not found", "invalid device", "device lost",
}

func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, sub := range disconnectSubstrings {
		if strings.Contains(msg, sub) {
			return domainerr.Device("device disconnected: " + err.Error())
		}
	}
	return domainerr.Device("stream error: " + err.Error())
}
