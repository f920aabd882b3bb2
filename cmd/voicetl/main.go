// Command voicetl runs the local voice-to-text daemon: a global
// hotkey toggles recording, a system tray icon reflects session
// state, and an optional debug view shows the pipeline live.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/sibukixxx/voicetypeless/internal/appdir"
	"github.com/sibukixxx/voicetypeless/internal/capture"
	"github.com/sibukixxx/voicetypeless/internal/hotkey"
	"github.com/sibukixxx/voicetypeless/internal/obslog"
	"github.com/sibukixxx/voicetypeless/internal/output"
	"github.com/sibukixxx/voicetypeless/internal/rewrite"
	"github.com/sibukixxx/voicetypeless/internal/service"
	"github.com/sibukixxx/voicetypeless/internal/session"
	"github.com/sibukixxx/voicetypeless/internal/store"
	"github.com/sibukixxx/voicetypeless/internal/stt"
	"github.com/sibukixxx/voicetypeless/internal/ui"
	"github.com/sibukixxx/voicetypeless/internal/vad"
)

func main() {
	debug := flag.Bool("debug", false, "enable the terminal debug view instead of the system tray")
	noTray := flag.Bool("no-tray", false, "disable the system tray icon")
	flag.Parse()

	if *debug {
		obslog.SetLevel(log.DebugLevel)
	}
	obslog.System().Info("starting voicetypeless")

	dbPath, err := appdir.DatabasePath()
	if err != nil {
		obslog.System().Fatal("cannot resolve database path", "err", err)
	}
	segDir, err := appdir.SegmentDir()
	if err != nil {
		obslog.System().Fatal("cannot resolve segment directory", "err", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		obslog.System().Fatal("failed to open store", "err", err)
	}
	defer st.Close()

	settings, err := st.LoadSettings(context.Background())
	if err != nil {
		obslog.System().Fatal("failed to load settings", "err", err)
	}

	// The active-app lookup is a per-OS seam (out of scope here); with
	// none wired, paste_to_active_app always falls back to clipboard.
	router := output.New(func() (string, bool) { return "", false })
	sttReg := stt.NewRegistry(nil)
	rewriter := rewrite.New(rewrite.NoopBackend{})

	svc := service.New(service.Deps{
		Store:      st,
		Router:     router,
		SttReg:     sttReg,
		Rewriter:   rewriter,
		SegmentDir: segDir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mode := session.Mode(settings.DefaultMode)
	if _, err := svc.StartSession(ctx, mode, session.DeliverClipboard); err != nil {
		obslog.System().Fatal("failed to start session", "err", err)
	}

	toggle := func() {
		if _, err := svc.ToggleRecording(ctx, service.PipelineOptions{
			CaptureConfig: capture.DefaultConfig(),
			VADConfig:     vad.DefaultConfig(),
			SttEngine:     settings.SttEngine,
		}); err != nil {
			obslog.System().Warn("toggle_recording failed", "err", err)
		}
	}

	det := hotkey.NewDetector(hotkey.Parse(settings.Hotkey))
	if err := det.Start(toggle); err != nil {
		obslog.System().Warn("hotkey detector unavailable", "err", err)
	}
	defer det.Stop()

	var tray *ui.Tray
	if !*noTray && !*debug {
		tray = ui.NewTray()
		tray.SetCallbacks(toggle, func() {}, func() { cancel() })
		tray.Start()
		defer tray.Stop()
		go forwardStateToTray(svc, tray)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *debug {
		model := ui.NewDebugModel()
		go forwardEventsToDebugView(svc, model)
		prog := tea.NewProgram(model)
		go func() {
			select {
			case <-sigCh:
			case <-ctx.Done():
			}
			prog.Quit()
		}()
		if _, err := prog.Run(); err != nil {
			obslog.System().Error("debug view exited with error", "err", err)
		}
	} else {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
	}

	obslog.System().Info("shutting down")
	svc.StopSession()
}

func forwardStateToTray(svc *service.Service, tray *ui.Tray) {
	for ev := range svc.Events() {
		if ev.Kind == service.EventSessionStateChanged {
			tray.SetState(ev.NewState)
		}
	}
}

func forwardEventsToDebugView(svc *service.Service, model *ui.DebugModel) {
	for ev := range svc.Events() {
		switch ev.Kind {
		case service.EventSessionStateChanged:
			model.SetState(string(ev.NewState))
		case service.EventAudioLevel:
			model.PushLevel(ev.RMS)
		case service.EventTranscriptFinal:
			model.SetTranscript(ev.Text)
		case service.EventError:
			if ev.Err != nil {
				model.SetError(ev.Err.Message)
			}
		}
	}
}
