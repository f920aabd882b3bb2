// Package ui hosts the optional, OS-level surfaces around the core
// pipeline: a system tray icon that reflects session state, callbacks
// for its menu actions.
package ui

import (
	"sync"

	"fyne.io/systray"

	"github.com/sibukixxx/voicetypeless/internal/session"
	"github.com/sibukixxx/voicetypeless/internal/trayicon"
)

// Tray owns the system tray icon and menu for a running session.
type Tray struct {
	mu        sync.Mutex
	running   bool
	onToggle  func()
	onPrefs   func()
	onQuit    func()

	mToggle *systray.MenuItem
	mPrefs  *systray.MenuItem
	mQuit   *systray.MenuItem
}

// NewTray creates a tray with no-op default callbacks; wire real ones
// with SetCallbacks before Start.
func NewTray() *Tray {
	return &Tray{
		onToggle: func() {},
		onPrefs:  func() {},
		onQuit:   func() {},
	}
}

// SetCallbacks wires the tray's three menu actions.
func (t *Tray) SetCallbacks(onToggle, onPrefs, onQuit func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = onToggle
	t.onPrefs = onPrefs
	t.onQuit = onQuit
}

// Start launches the tray icon on its own goroutine. Safe to call once.
func (t *Tray) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go systray.Run(t.onReady, t.onExit)
}

// Stop tears down the tray icon. Safe to call when already stopped.
func (t *Tray) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	systray.Quit()
}

// SetState updates the tray icon and menu label to reflect the
// session's current state.
func (t *Tray) SetState(state session.State) {
	if t.mToggle == nil {
		return
	}
	switch state {
	case session.StateRecording, session.StateTranscribing, session.StateRewriting, session.StateDelivering:
		t.mToggle.SetTitle("Stop Recording")
		systray.SetIcon(trayicon.Recording())
	case session.StateError:
		systray.SetIcon(trayicon.Error())
	default:
		t.mToggle.SetTitle("Start Recording")
		systray.SetIcon(trayicon.Idle())
	}
}

func (t *Tray) onReady() {
	systray.SetIcon(trayicon.Idle())
	systray.SetTitle("voicetypeless")
	systray.SetTooltip("Local voice-to-text")

	t.mToggle = systray.AddMenuItem("Start Recording", "Toggle recording")
	systray.AddSeparator()
	t.mPrefs = systray.AddMenuItem("Preferences", "Open settings")
	t.mQuit = systray.AddMenuItem("Quit", "Quit voicetypeless")

	go func() {
		for {
			select {
			case <-t.mToggle.ClickedCh:
				t.onToggle()
			case <-t.mPrefs.ClickedCh:
				t.onPrefs()
			case <-t.mQuit.ClickedCh:
				t.onQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}
