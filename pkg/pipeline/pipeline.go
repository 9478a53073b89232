// Package pipeline runs the capture loop: it gates microphone frames on the
// application mode, watches for barge-in while the assistant speaks and
// forwards audio to the realtime session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-voiceloop/pkg/audioio"
	"github.com/teslashibe/go-voiceloop/pkg/detect"
	"github.com/teslashibe/go-voiceloop/pkg/metrics"
	"github.com/teslashibe/go-voiceloop/pkg/mode"
	"github.com/teslashibe/go-voiceloop/pkg/realtime"
)

// Session is the part of the realtime client the capture loop drives.
type Session interface {
	SendAudio(chunk []byte) error
	IsAssistantSpeaking() bool
	SpeechDurationMs() int
	Truncate(reason string) bool
}

// Config configures a Pipeline.
type Config struct {
	// DetectorRate is the sample rate detectors expect.
	DetectorRate int

	// Resampler names the converter used for the detector feed ("hq" or "linear").
	Resampler string

	// ActivationThresholdMs is how much assistant audio must have played
	// before barge-in detection starts.
	ActivationThresholdMs int

	// VADGain scales detector input to damp the assistant's own echo.
	VADGain float64

	// BargeIn tunes the barge-in debouncer.
	BargeIn detect.BargeInConfig

	// VAD classifies detector-rate frames as speech for barge-in.
	VAD detect.Detector

	// WakeWord gates ListeningForWakeWord. Nil means unavailable.
	WakeWord *detect.WakeWordGate

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		DetectorRate:          16000,
		Resampler:             "hq",
		ActivationThresholdMs: 100,
		VADGain:               0.20,
		BargeIn:               detect.DefaultBargeInConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DetectorRate <= 0 {
		return fmt.Errorf("detector rate must be positive, got %d", c.DetectorRate)
	}
	if c.VADGain < 0 {
		return fmt.Errorf("vad gain must not be negative, got %f", c.VADGain)
	}
	if c.ActivationThresholdMs < 0 {
		return fmt.Errorf("activation threshold must not be negative, got %d", c.ActivationThresholdMs)
	}
	return nil
}

// Option configures a Pipeline.
type Option func(*Config)

// WithDetectorRate sets the detector sample rate.
func WithDetectorRate(rate int) Option {
	return func(c *Config) { c.DetectorRate = rate }
}

// WithResampler selects the detector-feed resampler.
func WithResampler(kind string) Option {
	return func(c *Config) { c.Resampler = kind }
}

// WithActivationThreshold sets the played-audio threshold for barge-in.
func WithActivationThreshold(ms int) Option {
	return func(c *Config) { c.ActivationThresholdMs = ms }
}

// WithVADGain sets the detector input gain.
func WithVADGain(gain float64) Option {
	return func(c *Config) { c.VADGain = gain }
}

// WithBargeIn sets the barge-in classifier and debouncer tuning.
func WithBargeIn(vad detect.Detector, cfg detect.BargeInConfig) Option {
	return func(c *Config) {
		c.VAD = vad
		c.BargeIn = cfg
	}
}

// WithWakeWord sets the wake-word gate.
func WithWakeWord(g *detect.WakeWordGate) Option {
	return func(c *Config) { c.WakeWord = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// Pipeline reads microphone frames and routes them by mode.
type Pipeline struct {
	cfg     Config
	source  audioio.Source
	session Session
	modes   *mode.State
	logger  *slog.Logger
	metrics *metrics.Metrics

	bargeIn  *detect.BargeInDetector
	wakeWord *detect.WakeWordGate

	// Separate resamplers: each keeps filter state for one stream. A
	// stream restarts, and its resampler is reset, each time its gate opens.
	vadResampler  audioio.Resampler
	wakeResampler audioio.Resampler
	vadFeeding    bool
	wakeFeeding   bool
}

// New creates a capture pipeline. If the wake-word gate is unavailable the
// mode is forced to Streaming.
func New(source audioio.Source, session Session, modes *mode.State, opts ...Option) (*Pipeline, error) {
	if source == nil || session == nil || modes == nil {
		return nil, errors.New("pipeline: source, session and mode state are required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "pipeline")

	in := source.Config()
	vadRS, err := audioio.NewResampler(cfg.Resampler, in.SampleRate, cfg.DetectorRate, in.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("barge-in resampler: %w", err)
	}
	wakeRS, err := audioio.NewResampler(cfg.Resampler, in.SampleRate, cfg.DetectorRate, in.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("wake-word resampler: %w", err)
	}

	wake := cfg.WakeWord
	if wake == nil {
		wake = detect.NewWakeWordGate(nil, "", cfg.Logger)
	}
	if !wake.Available() {
		modes.Set(mode.Streaming)
		logger.Info("wake word unavailable, streaming continuously")
	}

	return &Pipeline{
		cfg:           cfg,
		source:        source,
		session:       session,
		modes:         modes,
		logger:        logger,
		metrics:       cfg.Metrics,
		bargeIn:       detect.NewBargeInDetector(cfg.VAD, cfg.BargeIn, nil, cfg.Logger),
		wakeWord:      wake,
		vadResampler:  vadRS,
		wakeResampler: wakeRS,
	}, nil
}

// Run reads frames until ctx is cancelled or the device fails. A device
// error is returned as is; it is not retried.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("capture started",
		"device", p.source.Name(),
		"mode", p.modes.Get(),
		"wake_word", p.wakeWord.Available(),
	)
	defer p.logger.Info("capture stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := p.source.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read microphone: %w", err)
		}

		p.ProcessFrame(frame)
	}
}

// ProcessFrame runs the barge-in gate, then the wake-word gate, then sends
// the frame if the mode is Streaming.
func (p *Pipeline) ProcessFrame(frame []byte) {
	p.checkBargeIn(frame)
	p.checkWakeWord(frame)

	if p.modes.Get() != mode.Streaming {
		return
	}
	if err := p.session.SendAudio(frame); err != nil && !realtime.IsNotConnected(err) {
		p.logger.Warn("send audio failed", "error", err)
	}
}

func (p *Pipeline) checkBargeIn(frame []byte) {
	active := p.modes.Get() == mode.Streaming &&
		p.session.IsAssistantSpeaking() &&
		p.session.SpeechDurationMs() > p.cfg.ActivationThresholdMs
	if !active {
		p.vadFeeding = false
		p.bargeIn.Skip()
		return
	}
	if !p.vadFeeding {
		p.vadFeeding = true
		if err := p.vadResampler.Reset(); err != nil {
			p.logger.Warn("barge-in resampler reset failed", "error", err)
		}
	}

	det, err := p.vadResampler.Process(frame)
	if err != nil {
		p.logger.Warn("barge-in resample failed", "error", err)
		return
	}
	det = audioio.Attenuate(det, p.cfg.VADGain)

	if p.bargeIn.Process(det) {
		played := p.session.SpeechDurationMs()
		p.metrics.RecordBargeIn()
		if p.session.Truncate("local_vad") {
			p.logger.Info("user barged in", "played_ms", played)
		}
	}
}

func (p *Pipeline) checkWakeWord(frame []byte) {
	if p.modes.Get() != mode.ListeningForWakeWord || !p.wakeWord.Available() {
		p.wakeFeeding = false
		return
	}
	if !p.wakeFeeding {
		p.wakeFeeding = true
		if err := p.wakeResampler.Reset(); err != nil {
			p.logger.Warn("wake-word resampler reset failed", "error", err)
		}
	}

	det, err := p.wakeResampler.Process(frame)
	if err != nil {
		p.logger.Warn("wake-word resample failed", "error", err)
		return
	}
	if p.wakeWord.ProcessFrame(det) {
		p.modes.Set(mode.Streaming)
		p.wakeWord.Reset()
	}
}

// BargeInCounters exposes the debouncer state for status reporting.
func (p *Pipeline) BargeInCounters() detect.BargeInCounters {
	return p.bargeIn.Counters()
}
