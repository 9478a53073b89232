// Package playback writes streamed assistant audio to an output device in
// fixed-size frames, with optional tempo change and instant cancellation.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceloop/pkg/audioio"
	"github.com/teslashibe/go-voiceloop/pkg/metrics"
)

// ErrEngineClosed is returned by operations on a closed engine.
var ErrEngineClosed = errors.New("playback: engine closed")

// Config configures an Engine.
type Config struct {
	// FrameBytes is the exact size of every device write.
	FrameBytes int

	// Speed is the tempo factor. 1.0 disables time-scale modification.
	Speed float64

	// WindowChunks is how many frames are gathered before each stretch.
	WindowChunks int

	// TSMFrame is the WSOLA analysis frame in samples.
	TSMFrame int

	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	OnDeviceError func(error)
}

// DefaultConfig returns a config for 30ms frames at 24kHz.
func DefaultConfig() Config {
	ac := audioio.DefaultConfig()
	return Config{
		FrameBytes:   ac.FrameBytes(),
		Speed:        1.0,
		WindowChunks: 8,
		TSMFrame:     DefaultTSMFrame,
	}
}

// Option configures an Engine.
type Option func(*Config)

// WithFrameBytes sets the device write size.
func WithFrameBytes(n int) Option {
	return func(c *Config) { c.FrameBytes = n }
}

// WithSpeed sets the tempo factor.
func WithSpeed(speed float64) Option {
	return func(c *Config) { c.Speed = speed }
}

// WithWindowChunks sets the number of frames per stretch window.
func WithWindowChunks(n int) Option {
	return func(c *Config) { c.WindowChunks = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics records device failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithDeviceErrorHandler is called once when the device fails.
func WithDeviceErrorHandler(fn func(error)) Option {
	return func(c *Config) { c.OnDeviceError = fn }
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.FrameBytes <= 0 || c.FrameBytes%2 != 0 {
		return fmt.Errorf("frame bytes must be a positive even number, got %d", c.FrameBytes)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", c.Speed)
	}
	if c.WindowChunks < 1 {
		return fmt.Errorf("window chunks must be at least 1, got %d", c.WindowChunks)
	}
	return nil
}

// Engine buffers PCM16 audio and writes it to a sink in exact frames from
// a writer goroutine it owns. Play, Flush and Clear never wait on the device
// and may be called from different goroutines.
type Engine struct {
	cfg       Config
	sink      audioio.Sink
	logger    *slog.Logger
	stretcher *Stretcher

	// mu guards the buffers so Clear can drop queued audio between two
	// device writes. idle is signalled whenever the writer stops.
	mu      sync.Mutex
	idle    *sync.Cond
	buf     []byte
	pre     []byte
	writing bool
	dead    bool
	closed  bool

	framesWritten int64

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates an engine writing to sink and starts its writer.
func New(sink audioio.Sink, opts ...Option) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("playback: nil sink")
	}

	cfg := DefaultConfig()
	sc := sink.Config()
	cfg.FrameBytes = sc.FrameBytes()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger.With("component", "playback"),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.idle = sync.NewCond(&e.mu)
	if cfg.Speed != 1.0 {
		e.stretcher = NewStretcher(cfg.Speed, cfg.TSMFrame)
		e.logger.Info("time-scale modification enabled",
			"speed", cfg.Speed,
			"window_chunks", cfg.WindowChunks,
		)
	}

	go e.run()
	return e, nil
}

// Play queues PCM16 bytes. Complete frames are written by the writer.
func (e *Engine) Play(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	e.mu.Lock()
	if e.dead || e.closed {
		e.mu.Unlock()
		return
	}
	if e.stretcher == nil {
		e.buf = append(e.buf, pcm...)
	} else {
		e.pre = append(e.pre, pcm...)
		window := e.cfg.WindowChunks * e.cfg.FrameBytes
		for len(e.pre) >= window {
			e.buf = append(e.buf, e.stretch(e.pre[:window])...)
			e.pre = e.pre[window:]
		}
	}
	e.mu.Unlock()

	e.signal()
}

// Flush stretches any partial window and pads the queued tail to a full
// frame so the writer plays everything.
func (e *Engine) Flush() {
	e.mu.Lock()
	if e.dead || e.closed {
		e.mu.Unlock()
		return
	}
	if len(e.pre) > 0 {
		pre := e.pre[:len(e.pre)&^1]
		if len(pre) > 0 {
			e.buf = append(e.buf, e.stretch(pre)...)
		}
		e.pre = nil
	}
	if rem := len(e.buf) % e.cfg.FrameBytes; rem != 0 {
		e.buf = append(e.buf, make([]byte, e.cfg.FrameBytes-rem)...)
	}
	e.mu.Unlock()

	e.signal()
}

// Clear drops all queued audio. A frame already handed to the device
// finishes; nothing after it is written.
func (e *Engine) Clear() {
	e.mu.Lock()
	dropped := len(e.buf) + len(e.pre)
	e.buf = nil
	e.pre = nil
	e.idle.Broadcast()
	e.mu.Unlock()

	e.logger.Debug("playback buffer cleared", "dropped_bytes", dropped)
}

// Wait blocks until every complete queued frame has been written or
// dropped and the writer is idle.
func (e *Engine) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.writing || (!e.dead && !e.closed && len(e.buf) >= e.cfg.FrameBytes) {
		e.idle.Wait()
	}
}

// Close stops the writer and releases the device. It waits for an
// in-flight device write. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.buf = nil
	e.pre = nil
	e.idle.Broadcast()
	e.mu.Unlock()

	close(e.quit)
	<-e.done

	e.mu.Lock()
	dead := e.dead
	e.mu.Unlock()
	if dead {
		return nil
	}
	return e.sink.Close()
}

// Dead reports whether the device failed.
func (e *Engine) Dead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dead
}

// Buffered returns the number of queued bytes, pre-stretch bytes included.
func (e *Engine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf) + len(e.pre)
}

// FramesWritten returns how many frames reached the device.
func (e *Engine) FramesWritten() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framesWritten
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case <-e.wake:
			e.drain()
		}
	}
}

// drain writes complete frames until the buffer runs short.
func (e *Engine) drain() {
	fb := e.cfg.FrameBytes
	for {
		e.mu.Lock()
		if e.dead || e.closed || len(e.buf) < fb {
			e.writing = false
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}
		frame := make([]byte, fb)
		copy(frame, e.buf[:fb])
		e.buf = e.buf[fb:]
		e.writing = true
		e.mu.Unlock()

		if err := e.sink.WriteFrame(frame); err != nil {
			e.fail(err)
			continue
		}

		e.mu.Lock()
		e.framesWritten++
		e.mu.Unlock()
	}
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return
	}
	e.dead = true
	e.buf = nil
	e.pre = nil
	e.mu.Unlock()

	e.logger.Error("playback device write failed, closing", "error", err, "device", e.sink.Name())
	if cerr := e.sink.Close(); cerr != nil {
		e.logger.Warn("close after write failure", "error", cerr)
	}
	e.cfg.Metrics.RecordPlaybackError()
	if e.cfg.OnDeviceError != nil {
		e.cfg.OnDeviceError(err)
	}
}

func (e *Engine) stretch(pcm []byte) []byte {
	return audioio.Float32ToBytes(e.stretcher.Process(audioio.BytesToFloat32(pcm)))
}
