package detect

import (
	"math"
	"testing"

	"github.com/teslashibe/go-voiceloop/pkg/audioio"
)

func tone(amplitude float64, samples int) []byte {
	out := make([]int16, samples)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return audioio.SamplesToBytes(out)
}

func TestNoop(t *testing.T) {
	var d Detector = Noop{}
	if d.ProcessFrame(tone(0.9, 480)) {
		t.Error("noop must never fire")
	}
	d.Reset()

	if !IsNoop(d) || !IsNoop(nil) || !IsNoop(&Noop{}) {
		t.Error("IsNoop should recognise the stub")
	}
	if IsNoop(NewEnergyDetector(0.1, 1)) {
		t.Error("energy detector is not a noop")
	}
}

func TestEnergyDetector(t *testing.T) {
	loud := tone(0.5, 480)
	quiet := tone(0.001, 480)

	t.Run("single frame", func(t *testing.T) {
		d := NewEnergyDetector(0.05, 1)
		if !d.ProcessFrame(loud) {
			t.Error("expected loud frame to be active")
		}
		if d.ProcessFrame(quiet) {
			t.Error("expected quiet frame to be inactive")
		}
	})

	t.Run("min frames", func(t *testing.T) {
		d := NewEnergyDetector(0.05, 3)
		if d.ProcessFrame(loud) || d.ProcessFrame(loud) {
			t.Error("fired before 3 frames")
		}
		if !d.ProcessFrame(loud) {
			t.Error("expected fire on 3rd loud frame")
		}
		d.Reset()
		if d.ProcessFrame(loud) {
			t.Error("reset should restart the run")
		}
	})

	t.Run("quiet frame breaks run", func(t *testing.T) {
		d := NewEnergyDetector(0.05, 2)
		d.ProcessFrame(loud)
		d.ProcessFrame(quiet)
		if d.ProcessFrame(loud) {
			t.Error("run should restart after a quiet frame")
		}
	})
}

func TestWakeWordGate(t *testing.T) {
	t.Run("noop is unavailable", func(t *testing.T) {
		g := NewWakeWordGate(nil, "hey", nil)
		if g.Available() {
			t.Error("gate around noop must be unavailable")
		}
	})

	t.Run("fires and resets", func(t *testing.T) {
		fired := false
		det := &scripted{}
		g := NewWakeWordGate(det, "hey", nil)
		if !g.Available() {
			t.Fatal("expected gate to be available")
		}
		if g.ProcessFrame(nil) {
			t.Error("unexpected fire")
		}
		det.speech = true
		fired = g.ProcessFrame(nil)
		if !fired {
			t.Error("expected fire")
		}
		g.Reset()
		if det.resets != 1 {
			t.Errorf("expected detector reset, got %d", det.resets)
		}
	})
}

func TestNewDetector(t *testing.T) {
	tests := []struct {
		engine  string
		noop    bool
		wantErr bool
	}{
		{"", true, false},
		{"none", true, false},
		{"energy", false, false},
		{"porcupine", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			d, err := NewDetector(tt.engine, 0.1, 2)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && IsNoop(d) != tt.noop {
				t.Errorf("IsNoop = %v, want %v", IsNoop(d), tt.noop)
			}
		})
	}
}
