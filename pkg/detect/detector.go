// Package detect provides the acoustic gates of the capture pipeline:
// pluggable frame detectors, the wake-word gate and the barge-in detector.
package detect

// Detector classifies one fixed-size PCM16 frame at a time.
type Detector interface {
	// ProcessFrame returns true when the frame triggers the detector.
	ProcessFrame(frame []byte) bool

	// Reset clears any internal state carried between frames.
	Reset()
}

// Noop is a detector that never fires. It stands in for a model that
// could not be loaded.
type Noop struct{}

// ProcessFrame always returns false.
func (Noop) ProcessFrame([]byte) bool { return false }

// Reset does nothing.
func (Noop) Reset() {}

// Func adapts a plain function to the Detector interface.
type Func func(frame []byte) bool

// ProcessFrame calls f.
func (f Func) ProcessFrame(frame []byte) bool { return f(frame) }

// Reset does nothing.
func (Func) Reset() {}

// IsNoop reports whether d is the no-op stub.
func IsNoop(d Detector) bool {
	switch d.(type) {
	case nil, Noop, *Noop:
		return true
	}
	return false
}

var (
	_ Detector = Noop{}
	_ Detector = Func(nil)
)
