// Package audioio provides frame-oriented audio capture and playback.
//
// Devices exchange fixed-size PCM16 little-endian frames. Two backends exist:
//   - PortAudio - real microphones and speakers
//   - Mock - CI/testing without hardware
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects PortAudio.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration for one device direction.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 24000 (required by OpenAI Realtime)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FrameDuration is the length of one frame.
	// Default: 30ms (720 samples at 24kHz)
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`

	// Device is a case-insensitive substring of the device name.
	// Empty selects the system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    24000,
		Channels:      1,
		FrameDuration: 30 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	if c.FrameSamples() == 0 {
		return fmt.Errorf("frame_duration %v is shorter than one sample at %dHz", c.FrameDuration, c.SampleRate)
	}
	return nil
}

// FrameSamples returns the number of samples per channel in one frame.
func (c *Config) FrameSamples() int {
	return FrameSamples(c.SampleRate, c.FrameDuration)
}

// FrameBytes returns the size of one frame in bytes.
func (c *Config) FrameBytes() int {
	return c.FrameSamples() * c.Channels * 2
}

// FrameMs returns the frame duration in whole milliseconds.
func (c *Config) FrameMs() int {
	return int(c.FrameDuration.Milliseconds())
}

// FrameSamples returns the number of mono samples in d at rate.
func FrameSamples(rate int, d time.Duration) int {
	return int(int64(rate) * d.Microseconds() / 1_000_000)
}

// FrameBytes returns the number of mono PCM16 bytes in d at rate.
func FrameBytes(rate int, d time.Duration) int {
	return FrameSamples(rate, d) * 2
}
