package playback

import (
	"math"
)

// DefaultTSMFrame is the WSOLA analysis frame in samples (about 21ms at 24kHz).
const DefaultTSMFrame = 512

// Stretcher changes the tempo of PCM audio without changing its pitch using
// waveform-similarity overlap-add (WSOLA). It holds no state between calls.
type Stretcher struct {
	speed     float64
	frame     int
	synthHop  int
	tolerance int
	window    []float32
}

// NewStretcher creates a stretcher for the given speed factor. Speed above 1
// shortens audio, below 1 lengthens it. frame is the analysis frame length in
// samples; values below 16 fall back to DefaultTSMFrame.
func NewStretcher(speed float64, frame int) *Stretcher {
	if frame < 16 {
		frame = DefaultTSMFrame
	}
	if speed <= 0 {
		speed = 1
	}
	return &Stretcher{
		speed:     speed,
		frame:     frame,
		synthHop:  frame / 2,
		tolerance: frame / 4,
		window:    hann(frame),
	}
}

// Speed returns the configured speed factor.
func (s *Stretcher) Speed() float64 {
	return s.speed
}

// OutputLen returns the number of samples Process produces for n input samples.
func (s *Stretcher) OutputLen(n int) int {
	return int(math.Round(float64(n) / s.speed))
}

// Process time-stretches samples. The result has exactly OutputLen(len(x)) samples.
func (s *Stretcher) Process(x []float32) []float32 {
	outLen := s.OutputLen(len(x))
	if outLen == 0 {
		return nil
	}
	if s.speed == 1 {
		out := make([]float32, len(x))
		copy(out, x)
		return out
	}
	if len(x) < s.frame*2 {
		return interpolate(x, outLen)
	}

	n := s.frame
	out := make([]float32, outLen+n)
	norm := make([]float32, outLen+n)
	analysisHop := float64(s.synthHop) * s.speed
	maxPos := len(x) - n

	prev := 0
	for k := 0; k*s.synthHop < outLen; k++ {
		synth := k * s.synthHop
		nominal := clampInt(int(math.Round(float64(k)*analysisHop)), 0, maxPos)

		pos := nominal
		if k > 0 {
			pos = s.bestOffset(x, nominal, clampInt(prev+s.synthHop, 0, maxPos), maxPos)
		}

		for i := 0; i < n; i++ {
			out[synth+i] += x[pos+i] * s.window[i]
			norm[synth+i] += s.window[i]
		}
		prev = pos
	}

	out = out[:outLen]
	for i := range out {
		if norm[i] > 1e-6 {
			out[i] /= norm[i]
		}
	}
	return out
}

// bestOffset searches around nominal for the frame most similar to the
// natural continuation of the previously copied frame.
func (s *Stretcher) bestOffset(x []float32, nominal, target, maxPos int) int {
	best := nominal
	bestScore := math.Inf(-1)
	overlap := s.frame - s.synthHop

	for d := -s.tolerance; d <= s.tolerance; d++ {
		cand := nominal + d
		if cand < 0 || cand > maxPos {
			continue
		}
		var score float64
		for i := 0; i < overlap; i++ {
			score += float64(x[cand+i]) * float64(x[target+i])
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

// hann returns a Hann window offset by half a sample so no tap is zero.
func hann(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*(float64(i)+0.5)/float64(n)))
	}
	return w
}

// interpolate linearly resizes short buffers that cannot hold two WSOLA frames.
func interpolate(x []float32, outLen int) []float32 {
	out := make([]float32, outLen)
	if len(x) == 0 {
		return out
	}
	ratio := float64(len(x)) / float64(outLen)
	for i := range out {
		p := float64(i) * ratio
		j := int(p)
		if j >= len(x)-1 {
			out[i] = x[len(x)-1]
			continue
		}
		f := float32(p - float64(j))
		out[i] = x[j] + f*(x[j+1]-x[j])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
