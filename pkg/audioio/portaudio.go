//go:build cgo

package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

var (
	paMu   sync.Mutex
	paRefs int
)

// acquirePortAudio initializes the PortAudio library on first use.
func acquirePortAudio() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("portaudio initialize: %w", err)
		}
	}
	paRefs++
	return nil
}

// releasePortAudio terminates the library once the last stream is closed.
func releasePortAudio() {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		return
	}
	paRefs--
	if paRefs == 0 {
		_ = portaudio.Terminate()
	}
}

// ListDevices returns every device PortAudio can see.
func ListDevices() ([]DeviceInfo, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	defer releasePortAudio()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		info := DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// findDevice returns the first device whose name contains name and that has
// channels in the requested direction. An empty name selects the default.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(name)
	for _, d := range devices {
		if !strings.Contains(strings.ToLower(d.Name), needle) {
			continue
		}
		if input && d.MaxInputChannels > 0 || !input && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no %s device matching %q", direction(input), name)
}

func direction(input bool) string {
	if input {
		return "input"
	}
	return "output"
}

// PortAudioSource captures frames from a blocking PortAudio input stream.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool

	frames    atomic.Int64
	overflows atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (*PortAudioSource, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}

	dev, err := findDevice(cfg.Device, true)
	if err != nil {
		releasePortAudio()
		return nil, err
	}

	buf := make([]int16, cfg.FrameSamples()*cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSamples(),
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	logger.Info("portaudio source opened",
		"device", dev.Name,
		"sample_rate", cfg.SampleRate,
		"frame_samples", cfg.FrameSamples(),
	)

	return &PortAudioSource{cfg: cfg, logger: logger, stream: stream, buf: buf}, nil
}

// ReadFrame blocks until one frame has been captured.
// Input overflows are counted and otherwise ignored.
func (s *PortAudioSource) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrDeviceClosed
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("portaudio read: %w", err)
		}
		s.overflows.Add(1)
		s.logger.Debug("portaudio input overflow")
	}

	s.frames.Add(1)
	return SamplesToBytes(s.buf), nil
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return "portaudio" }

// Close stops the stream and releases the library.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.stream.Stop()
	err := s.stream.Close()
	releasePortAudio()
	return err
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() Stats {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	frames := s.frames.Load()
	return Stats{
		Frames: frames,
		Bytes:  frames * int64(s.cfg.FrameBytes()),
		Errors: s.overflows.Load(),
		Closed: closed,
		Name:   "portaudio",
	}
}

// PortAudioSink plays frames through a blocking PortAudio output stream.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool

	frames     atomic.Int64
	underflows atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (*PortAudioSink, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}

	dev, err := findDevice(cfg.Device, false)
	if err != nil {
		releasePortAudio()
		return nil, err
	}

	buf := make([]int16, cfg.FrameSamples()*cfg.Channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSamples(),
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	logger.Info("portaudio sink opened",
		"device", dev.Name,
		"sample_rate", cfg.SampleRate,
		"frame_samples", cfg.FrameSamples(),
	)

	return &PortAudioSink{cfg: cfg, logger: logger, stream: stream, buf: buf}, nil
}

// WriteFrame blocks until the frame is queued on the device.
func (s *PortAudioSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDeviceClosed
	}
	if len(frame) != len(s.buf)*2 {
		return fmt.Errorf("portaudio write: frame is %d bytes, want %d", len(frame), len(s.buf)*2)
	}

	for i := range s.buf {
		s.buf[i] = int16(frame[i*2]) | int16(frame[i*2+1])<<8
	}

	if err := s.stream.Write(); err != nil {
		if !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("portaudio write: %w", err)
		}
		s.underflows.Add(1)
	}

	s.frames.Add(1)
	return nil
}

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return "portaudio" }

// Close stops the stream and releases the library.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.stream.Stop()
	err := s.stream.Close()
	releasePortAudio()
	return err
}

// Stats returns sink statistics.
func (s *PortAudioSink) Stats() Stats {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	frames := s.frames.Load()
	return Stats{
		Frames: frames,
		Bytes:  frames * int64(s.cfg.FrameBytes()),
		Errors: s.underflows.Load(),
		Closed: closed,
		Name:   "portaudio",
	}
}

var (
	_ Source = (*PortAudioSource)(nil)
	_ Sink   = (*PortAudioSink)(nil)
)
