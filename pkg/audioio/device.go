package audioio

import (
	"errors"
	"io"
)

// ErrDeviceClosed is returned by reads and writes on a closed device.
var ErrDeviceClosed = errors.New("audioio: device closed")

// Source captures fixed-size frames from a microphone or other input.
type Source interface {
	// ReadFrame blocks until one full frame (Config().FrameBytes()) is available.
	ReadFrame() ([]byte, error)

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "mock").
	Name() string

	io.Closer
}

// Sink plays fixed-size frames to a speaker or other output.
type Sink interface {
	// WriteFrame blocks until the frame has been handed to the device.
	// len(frame) must equal Config().FrameBytes().
	WriteFrame(frame []byte) error

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "mock").
	Name() string

	io.Closer
}

// Device is a full-duplex audio device.
type Device interface {
	Source
	Sink
}

// Stats contains frame counters for a source or sink.
type Stats struct {
	Frames int64  `json:"frames"`
	Bytes  int64  `json:"bytes"`
	Errors int64  `json:"errors"`
	Closed bool   `json:"closed"`
	Name   string `json:"backend"`
}

// DeviceInfo describes an available PortAudio device.
type DeviceInfo struct {
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}
