// Package output is the delivery router: it always has clipboard
// write available and optionally pastes into an allow-listed
// foreground application, following the decision table the
// application service consults before acting.
package output

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"

	"github.com/sibukixxx/voicetypeless/internal/obslog"
)

// Decision is the outcome of a paste_to_active_app call.
type Decision string

const (
	DecisionPasted            Decision = "pasted"
	DecisionNeedsConfirmation Decision = "needs_confirmation"
	DecisionFallbackClipboard Decision = "fallback_clipboard"
)

// Result carries the decision plus whichever fields apply to it.
type Result struct {
	Decision Decision
	App      string
	Text     string
	Reason   string
}

// ActiveAppLookup resolves the foreground application's bundle/app id,
// or false if it cannot be determined. This is the one OS-specific
// seam the router depends on; callers wire a concrete implementation
// (out of scope for this package, per the external-collaborator
// boundary around paste integration).
type ActiveAppLookup func() (id string, ok bool)

// Router owns clipboard writes and the allow-listed paste decision.
type Router struct {
	lookupActiveApp ActiveAppLookup
}

// New creates a router using the given active-app lookup.
func New(lookup ActiveAppLookup) *Router {
	return &Router{lookupActiveApp: lookup}
}

// SetClipboard writes text to the system clipboard, falling back to
// platform CLI tools (xclip/xsel/pbcopy) when the primary library path
// fails — the common case inside containers and over remote desktop.
func (r *Router) SetClipboard(text string) error {
	if err := clipboard.WriteAll(text); err == nil {
		return nil
	} else {
		obslog.Service().Warn("primary clipboard write failed, trying platform fallback", "err", err)
	}

	switch runtime.GOOS {
	case "linux":
		if err := writeViaCommand("xclip", []string{"-selection", "clipboard"}, text); err == nil {
			return nil
		}
		if err := writeViaCommand("xsel", []string{"--clipboard", "--input"}, text); err == nil {
			return nil
		}
	case "darwin":
		if err := writeViaCommand("pbcopy", nil, text); err == nil {
			return nil
		}
	}
	return fmt.Errorf("clipboard write failed on all available methods")
}

func writeViaCommand(name string, args []string, text string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	go func() {
		defer stdin.Close()
		fmt.Fprint(stdin, text)
	}()
	return cmd.Run()
}

// GetClipboard reads the current clipboard text.
func (r *Router) GetClipboard() (string, error) {
	return clipboard.ReadAll()
}

// PasteToActiveApp applies the §6 decision table: no active app id ->
// FallbackClipboard; app not on the allow-list -> FallbackClipboard;
// paste_confirm set -> NeedsConfirmation; otherwise -> Pasted. It
// never performs the actual OS-level paste keystroke itself — that is
// the external UI shell's job once it receives DecisionPasted.
func (r *Router) PasteToActiveApp(text string, allowlist []string, pasteConfirm bool) Result {
	appID, ok := r.lookupActiveApp()
	if !ok {
		return Result{Decision: DecisionFallbackClipboard, Text: text, Reason: "cannot identify active app"}
	}

	if !contains(allowlist, appID) {
		return Result{Decision: DecisionFallbackClipboard, App: appID, Text: text,
			Reason: fmt.Sprintf("%s not in allow-list", appID)}
	}

	if pasteConfirm {
		return Result{Decision: DecisionNeedsConfirmation, App: appID, Text: text}
	}
	return Result{Decision: DecisionPasted, App: appID, Text: text}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
