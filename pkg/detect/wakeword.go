package detect

import (
	"fmt"
	"log/slog"
)

// WakeWordGate wraps a wake-word detector. A gate built around the no-op
// stub reports itself unavailable so the pipeline can skip wake-word gating.
type WakeWordGate struct {
	detector Detector
	name     string
	logger   *slog.Logger
}

// NewWakeWordGate creates a gate. A nil detector is replaced by Noop.
func NewWakeWordGate(d Detector, name string, logger *slog.Logger) *WakeWordGate {
	if d == nil {
		d = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeWordGate{
		detector: d,
		name:     name,
		logger:   logger.With("component", "detect.wakeword"),
	}
}

// Available reports whether a real model backs the gate.
func (g *WakeWordGate) Available() bool {
	return !IsNoop(g.detector)
}

// Name returns the configured wake-word name.
func (g *WakeWordGate) Name() string {
	return g.name
}

// ProcessFrame feeds one detector-rate frame and reports activation.
func (g *WakeWordGate) ProcessFrame(frame []byte) bool {
	if g.detector.ProcessFrame(frame) {
		g.logger.Info("wake word detected", "name", g.name)
		return true
	}
	return false
}

// Reset clears the wrapped detector's state.
func (g *WakeWordGate) Reset() {
	g.detector.Reset()
}

// NewDetector builds a detector by engine name. Engine "none" (or empty)
// yields the no-op stub.
func NewDetector(engine string, threshold float64, minFrames int) (Detector, error) {
	switch engine {
	case "", "none":
		return Noop{}, nil
	case "energy":
		return NewEnergyDetector(threshold, minFrames), nil
	default:
		return nil, fmt.Errorf("unknown detector engine %q", engine)
	}
}

var _ Detector = (*WakeWordGate)(nil)
