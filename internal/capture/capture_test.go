package capture

import (
	"testing"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
)

func TestRMS(t *testing.T) {
	testCases := []struct {
		name     string
		samples  []float32
		expected float32
	}{
		{name: "empty buffer", samples: []float32{}, expected: 0},
		{name: "zero samples", samples: []float32{0, 0, 0, 0}, expected: 0},
		{name: "full scale square", samples: []float32{1.0, 0, -1.0, 0}, expected: 0.7071},
		{name: "half scale", samples: []float32{0.5, 0.5, 0.5, 0.5}, expected: 0.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RMS(tc.samples)
			if tc.expected == 0 && got != 0 {
				t.Errorf("expected 0, got %f", got)
			} else if tc.expected > 0 && (got < tc.expected*0.95 || got > tc.expected*1.05) {
				t.Errorf("expected %f, got %f", tc.expected, got)
			}
		})
	}
}

func TestToMonoAverages(t *testing.T) {
	stereo := []float32{1.0, -1.0, 0.5, 0.5}
	mono := ToMono(stereo, 2)
	want := []float32{0, 0.5}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, mono[i], want[i])
		}
	}
}

func TestToMonoPassthroughWhenAlreadyMono(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := ToMono(in, 1)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d changed", i)
		}
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length changed: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d changed", i)
		}
	}
}

func TestResampleOutputLength(t *testing.T) {
	in := make([]float32, 1000)
	out := Resample(in, 48000, 16000)
	want := 1000 * 16000 / 48000
	if len(out) != want {
		t.Errorf("len(out) = %d, want %d", len(out), want)
	}
}

func TestResampleInterpolatesMidpoint(t *testing.T) {
	// Upsampling 1 Hz -> 2 Hz: output index 1 sits exactly between
	// input[0] and input[1] per the spec's formula.
	in := []float32{0.0, 1.0}
	out := Resample(in, 1, 2)
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[0] != 0.0 {
		t.Errorf("out[0] = %v, want 0", out[0])
	}
	if out[1] < 0.49 || out[1] > 0.51 {
		t.Errorf("out[1] = %v, want ~0.5", out[1])
	}
}

func TestDeviceIsActiveDefaultsFalse(t *testing.T) {
	d := &Device{}
	if d.IsActive() {
		t.Error("expected IsActive() false before Start")
	}
}

func TestClassifyOpenErrorDisconnect(t *testing.T) {
	err := classifyOpenError(errString("device not found on bus"))
	de, ok := domainerr.As(err)
	if !ok {
		t.Fatal("expected a domain error")
	}
	if de.Recoverable != true {
		t.Errorf("device errors are recoverable per the error taxonomy")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
