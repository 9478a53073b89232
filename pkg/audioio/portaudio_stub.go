//go:build !cgo

package audioio

import (
	"errors"
	"log/slog"
)

// ErrNoPortAudio is returned when the binary was built without cgo.
var ErrNoPortAudio = errors.New("audioio: PortAudio requires a cgo build")

// ListDevices returns an error in builds without cgo.
func ListDevices() ([]DeviceInfo, error) {
	return nil, ErrNoPortAudio
}

// newPortAudioSource returns an error in builds without cgo.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, ErrNoPortAudio
}

// newPortAudioSink returns an error in builds without cgo.
func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, ErrNoPortAudio
}
