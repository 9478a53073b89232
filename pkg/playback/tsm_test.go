package playback

import (
	"math"
	"testing"
)

func sine(n int, freq, rate float64) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return x
}

func rms(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestStretcher_OutputLength(t *testing.T) {
	tests := []struct {
		speed float64
		n     int
	}{
		{1.0, 5760},
		{1.25, 5760},
		{1.5, 5760},
		{0.75, 5760},
		{2.0, 1000},
		{1.5, 300},
	}

	for _, tt := range tests {
		s := NewStretcher(tt.speed, 0)
		out := s.Process(sine(tt.n, 300, 24000))
		want := int(math.Round(float64(tt.n) / tt.speed))
		if len(out) != want {
			t.Errorf("speed %.2f n %d: got %d samples, want %d", tt.speed, tt.n, len(out), want)
		}
	}
}

func TestStretcher_PreservesLevel(t *testing.T) {
	in := sine(5760, 300, 24000)
	for _, speed := range []float64{0.8, 1.3, 1.6} {
		out := NewStretcher(speed, 0).Process(in)
		ratio := rms(out) / rms(in)
		if ratio < 0.8 || ratio > 1.2 {
			t.Errorf("speed %.1f: RMS ratio %.2f, want about 1", speed, ratio)
		}
	}
}

func TestStretcher_Empty(t *testing.T) {
	if out := NewStretcher(1.5, 0).Process(nil); len(out) != 0 {
		t.Errorf("expected empty output, got %d", len(out))
	}
}

func TestHannWindow(t *testing.T) {
	w := hann(8)
	for i, v := range w {
		if v <= 0 || v > 1 {
			t.Errorf("tap %d out of range: %f", i, v)
		}
		if math.Abs(float64(v-w[len(w)-1-i])) > 1e-6 {
			t.Errorf("window not symmetric at %d", i)
		}
	}
}
