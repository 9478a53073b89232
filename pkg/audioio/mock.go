package audioio

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It replays scripted frames and then generates synthetic audio
// (silence or sine wave) until its frame limit is reached.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	script   [][]byte
	limit    int
	readErr  error
	realtime bool
	ticker   *time.Ticker

	// Stats
	framesRead atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript queues frames that are returned before any generated audio.
func WithScript(frames ...[]byte) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, frames...)
	}
}

// WithFrameLimit ends the stream after n frames. Reads past the limit
// return the configured read error, or io.EOF.
func WithFrameLimit(n int) MockSourceOption {
	return func(m *MockSource) {
		m.limit = n
	}
}

// WithReadError sets the error returned once the frame limit is reached.
func WithReadError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.readErr = err
	}
}

// WithRealtime paces reads at the frame duration, like a real microphone.
func WithRealtime() MockSourceOption {
	return func(m *MockSource) {
		m.realtime = true
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		frequency: 0, // Silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.realtime {
		m.ticker = time.NewTicker(cfg.FrameDuration)
	}

	return m
}

// ReadFrame returns the next scripted or generated frame.
func (m *MockSource) ReadFrame() ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	if m.limit > 0 && int(m.framesRead.Load()) >= m.limit {
		err := m.readErr
		m.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	var frame []byte
	if len(m.script) > 0 {
		frame = m.script[0]
		m.script = m.script[1:]
	} else {
		frame = m.generateFrame()
	}
	ticker := m.ticker
	m.mu.Unlock()

	if ticker != nil {
		<-ticker.C
	}

	m.framesRead.Add(1)
	return frame, nil
}

func (m *MockSource) generateFrame() []byte {
	n := m.cfg.FrameSamples()
	samples := make([]int16, n*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < n; i++ {
			sample := m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return SamplesToBytes(samples)
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources. Subsequent reads return ErrDeviceClosed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.logger.Debug("mock audio source closed", "frames", m.framesRead.Load())
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() Stats {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	frames := m.framesRead.Load()
	return Stats{
		Frames: frames,
		Bytes:  frames * int64(m.cfg.FrameBytes()),
		Closed: closed,
		Name:   "mock",
	}
}

// MockSink is a mock audio sink for testing.
// It records every frame written to it.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	frames     [][]byte
	failAfter  int
	writeErr   error
	closeCalls int

	framesWritten atomic.Int64
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithWriteError makes the n-th and later writes (1-based) fail with err.
func WithWriteError(n int, err error) MockSinkOption {
	return func(m *MockSink) {
		m.failAfter = n
		m.writeErr = err
	}
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSink{
		cfg:    cfg,
		logger: logger,
		frames: make([][]byte, 0, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WriteFrame records the frame.
func (m *MockSink) WriteFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrDeviceClosed
	}
	if want := m.cfg.FrameBytes(); len(frame) != want {
		return fmt.Errorf("mock write: frame is %d bytes, want %d", len(frame), want)
	}
	if m.writeErr != nil && len(m.frames)+1 >= m.failAfter {
		return m.writeErr
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.frames = append(m.frames, buf)
	m.framesWritten.Add(1)
	return nil
}

// Frames returns a copy of every frame written so far.
func (m *MockSink) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// Written returns all written audio concatenated.
func (m *MockSink) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, f := range m.frames {
		out = append(out, f...)
	}
	return out
}

// Closed reports whether Close has been called.
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCalls returns how many times Close was called.
func (m *MockSink) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.closed = true
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() Stats {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	frames := m.framesWritten.Load()
	return Stats{
		Frames: frames,
		Bytes:  frames * int64(m.cfg.FrameBytes()),
		Closed: closed,
		Name:   "mock",
	}
}

var (
	_ Source = (*MockSource)(nil)
	_ Sink   = (*MockSink)(nil)
)
