package detect

import (
	"sync"

	"github.com/teslashibe/go-voiceloop/pkg/audioio"
)

// EnergyDetector is a pure-Go detector based on RMS energy levels.
// A frame counts as active when its RMS reaches Threshold; the detector fires
// once MinFrames consecutive active frames have been seen.
type EnergyDetector struct {
	mu        sync.Mutex
	threshold float64
	minFrames int
	active    int
}

// NewEnergyDetector creates an energy detector. minFrames below 1 is treated as 1.
func NewEnergyDetector(threshold float64, minFrames int) *EnergyDetector {
	if minFrames < 1 {
		minFrames = 1
	}
	return &EnergyDetector{threshold: threshold, minFrames: minFrames}
}

// ProcessFrame returns true while the active run is at least MinFrames long.
func (d *EnergyDetector) ProcessFrame(frame []byte) bool {
	level := audioio.CalculateRMS(audioio.BytesToSamples(frame))

	d.mu.Lock()
	defer d.mu.Unlock()

	if level < d.threshold {
		d.active = 0
		return false
	}
	d.active++
	return d.active >= d.minFrames
}

// Reset clears the active run.
func (d *EnergyDetector) Reset() {
	d.mu.Lock()
	d.active = 0
	d.mu.Unlock()
}

// Level returns the RMS level of a frame, for tuning thresholds.
func Level(frame []byte) float64 {
	return audioio.CalculateRMS(audioio.BytesToSamples(frame))
}

var _ Detector = (*EnergyDetector)(nil)
