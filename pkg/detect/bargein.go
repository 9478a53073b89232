package detect

import (
	"log/slog"
	"sync"
)

// BargeInConfig tunes the barge-in debouncer. Counts are in frames.
type BargeInConfig struct {
	// MinSpeechFrames is the number of speech frames needed to fire.
	MinSpeechFrames int

	// CooldownFrames is how many frames must pass after an interrupt
	// before speech is counted again.
	CooldownFrames int

	// SilenceResetFrames is how many non-speech frames end a speech burst.
	SilenceResetFrames int
}

// DefaultBargeInConfig returns values tuned for 30ms frames.
func DefaultBargeInConfig() BargeInConfig {
	return BargeInConfig{
		MinSpeechFrames:    12,
		CooldownFrames:     2000 / 30,
		SilenceResetFrames: 3,
	}
}

// BargeInCounters is a snapshot of the debouncer state.
type BargeInCounters struct {
	SpeechFrames             int
	SilenceFramesAfterSpeech int
	CooldownFramesRemaining  int
}

// BargeInDetector turns a per-frame speech classifier into a debounced
// interrupt signal. It is driven from the capture loop only.
type BargeInDetector struct {
	vad         Detector
	cfg         BargeInConfig
	onInterrupt func()
	logger      *slog.Logger

	mu       sync.Mutex
	speech   int
	silence  int
	cooldown int
	fired    int
}

// NewBargeInDetector creates a detector around vad. onInterrupt runs
// synchronously on the calling goroutine each time the detector fires.
func NewBargeInDetector(vad Detector, cfg BargeInConfig, onInterrupt func(), logger *slog.Logger) *BargeInDetector {
	if vad == nil {
		vad = Noop{}
	}
	if cfg.MinSpeechFrames < 1 {
		cfg.MinSpeechFrames = 1
	}
	if cfg.SilenceResetFrames < 1 {
		cfg.SilenceResetFrames = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BargeInDetector{
		vad:         vad,
		cfg:         cfg,
		onInterrupt: onInterrupt,
		logger:      logger.With("component", "detect.bargein"),
	}
}

// Process classifies one detector-rate frame and reports whether it fired.
func (b *BargeInDetector) Process(frame []byte) bool {
	isSpeech := b.vad.ProcessFrame(frame)

	b.mu.Lock()
	if b.cooldown > 0 {
		b.cooldown--
	}

	fired := false
	switch {
	case b.cooldown == 0 && isSpeech:
		b.speech++
		b.silence = 0
		if b.speech >= b.cfg.MinSpeechFrames {
			fired = true
			b.fired++
			b.cooldown = b.cfg.CooldownFrames
			b.speech = 0
		}
	case !isSpeech && b.speech > 0:
		b.silence++
		if b.silence >= b.cfg.SilenceResetFrames {
			b.speech = 0
			b.silence = 0
		}
	}
	b.mu.Unlock()

	if fired {
		b.logger.Info("barge-in detected", "min_speech_frames", b.cfg.MinSpeechFrames)
		if b.onInterrupt != nil {
			b.onInterrupt()
		}
	}
	return fired
}

// Skip advances one frame without classifying it, for frames where the
// assistant is not speaking. The cooldown still runs down and any partial
// speech burst is discarded.
func (b *BargeInDetector) Skip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cooldown > 0 {
		b.cooldown--
	}
	b.speech = 0
	b.silence = 0
}

// Reset clears the counters, the cooldown and the classifier state.
func (b *BargeInDetector) Reset() {
	b.mu.Lock()
	b.speech = 0
	b.silence = 0
	b.cooldown = 0
	b.mu.Unlock()
	b.vad.Reset()
}

// Counters returns the current debouncer state.
func (b *BargeInDetector) Counters() BargeInCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BargeInCounters{
		SpeechFrames:             b.speech,
		SilenceFramesAfterSpeech: b.silence,
		CooldownFramesRemaining:  b.cooldown,
	}
}

// Fired returns how many interrupts have fired.
func (b *BargeInDetector) Fired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}
