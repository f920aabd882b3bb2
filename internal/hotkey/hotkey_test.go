package hotkey

import "testing"

func TestParseCmdOrCtrlShiftR(t *testing.T) {
	cfg := Parse("CmdOrCtrl+Shift+R")
	if cfg.Key != "r" {
		t.Errorf("Key = %q, want %q", cfg.Key, "r")
	}
	want := map[string]bool{"ctrl": true, "shift": true}
	if len(cfg.Modifiers) != len(want) {
		t.Fatalf("Modifiers = %v, want ctrl+shift", cfg.Modifiers)
	}
	for _, m := range cfg.Modifiers {
		if !want[m] {
			t.Errorf("unexpected modifier %q", m)
		}
	}
}

func TestParseSingleKeyNoModifiers(t *testing.T) {
	cfg := Parse("F9")
	if cfg.Key != "f9" {
		t.Errorf("Key = %q, want %q", cfg.Key, "f9")
	}
	if len(cfg.Modifiers) != 0 {
		t.Errorf("Modifiers = %v, want none", cfg.Modifiers)
	}
}

func TestDetectorSetConfigIsObservedByGetConfig(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.SetConfig(Config{Modifiers: []string{"alt"}, Key: "t"})
	got := d.GetConfig()
	if got.Key != "t" || len(got.Modifiers) != 1 || got.Modifiers[0] != "alt" {
		t.Errorf("GetConfig() = %+v", got)
	}
}

func TestStopWhenNotStartedIsANoop(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Stop() // must not panic or block
}
