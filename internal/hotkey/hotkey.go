// Package hotkey detects the global toggle-recording key combination
// and invokes a callback from a background goroutine, independent of
// whichever application currently has focus.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Config is a parsed key combination: zero or more modifiers plus a
// single main key, e.g. {Modifiers: ["ctrl","shift"], Key: "r"}.
type Config struct {
	Modifiers []string
	Key       string
}

// Parse turns a setting string like "CmdOrCtrl+Shift+R" into a Config.
// CmdOrCtrl is treated as ctrl, matching gohook's modifier bits on
// non-Darwin platforms; Cmd is platform-specific and out of scope here.
func Parse(spec string) Config {
	parts := strings.Split(spec, "+")
	if len(parts) == 0 {
		return DefaultConfig()
	}
	cfg := Config{Key: strings.ToLower(parts[len(parts)-1])}
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(p) {
		case "cmdorctrl", "ctrl", "control":
			cfg.Modifiers = append(cfg.Modifiers, "ctrl")
		case "shift":
			cfg.Modifiers = append(cfg.Modifiers, "shift")
		case "alt", "option":
			cfg.Modifiers = append(cfg.Modifiers, "alt")
		}
	}
	return cfg
}

// DefaultConfig matches the settings default hotkey, CmdOrCtrl+Shift+R.
func DefaultConfig() Config {
	return Config{Modifiers: []string{"ctrl", "shift"}, Key: "r"}
}

// Detector listens for one configured combination and calls back on
// every matching key-down event until Stop.
type Detector struct {
	mu     sync.Mutex
	config Config
	active bool
	stopCh chan struct{}
}

// NewDetector creates a detector bound to the given combination.
func NewDetector(config Config) *Detector {
	return &Detector{config: config, stopCh: make(chan struct{})}
}

// GetConfig returns the detector's current combination.
func (d *Detector) GetConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// SetConfig changes the combination watched for; it takes effect
// immediately since matches reads d.config under the mutex on every
// event.
func (d *Detector) SetConfig(config Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = config
}

// Start begins listening in a background goroutine; callback fires on
// the hook's own goroutine, so it must not block.
func (d *Detector) Start(callback func()) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return fmt.Errorf("hotkey detector already running")
	}
	d.active = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go func() {
		evChan := hook.Start()
		defer hook.End()

		for {
			select {
			case <-d.stopCh:
				return
			case ev := <-evChan:
				if ev.Kind == hook.KeyDown && d.matches(ev) {
					callback()
				}
			}
		}
	}()
	return nil
}

// Stop terminates the listener. Safe to call when already stopped.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.active = false
	close(d.stopCh)
}

func (d *Detector) matches(ev hook.Event) bool {
	d.mu.Lock()
	cfg := d.config
	d.mu.Unlock()
	return isHotkeyPressed(ev, cfg)
}

func isHotkeyPressed(ev hook.Event, config Config) bool {
	keyChar := string(ev.Keychar)
	if !strings.EqualFold(keyChar, config.Key) {
		return false
	}

	pressed := map[string]bool{
		"ctrl":  ev.Rawcode&0x01 != 0,
		"shift": ev.Rawcode&0x02 != 0,
		"alt":   ev.Rawcode&0x04 != 0,
	}
	for _, mod := range config.Modifiers {
		if !pressed[mod] {
			return false
		}
	}
	return true
}
