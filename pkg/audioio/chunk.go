package audioio

import "time"

// AudioChunk is an immutable block of PCM16 audio tagged with its duration.
// It is the unit of transfer between pipeline stages.
type AudioChunk struct {
	data       []byte
	durationMs int
}

// NewChunk copies data into a new chunk.
func NewChunk(data []byte, durationMs int) AudioChunk {
	buf := make([]byte, len(data))
	copy(buf, data)
	return AudioChunk{data: buf, durationMs: durationMs}
}

// Bytes returns the chunk payload. The slice must not be modified.
func (c AudioChunk) Bytes() []byte {
	return c.data
}

// Len returns the payload size in bytes.
func (c AudioChunk) Len() int {
	return len(c.data)
}

// DurationMs returns the tagged duration in milliseconds.
func (c AudioChunk) DurationMs() int {
	return c.durationMs
}

// Duration returns the tagged duration.
func (c AudioChunk) Duration() time.Duration {
	return time.Duration(c.durationMs) * time.Millisecond
}

// Samples decodes the payload into int16 samples.
func (c AudioChunk) Samples() []int16 {
	return BytesToSamples(c.data)
}

// IsEmpty reports whether the chunk carries no audio.
func (c AudioChunk) IsEmpty() bool {
	return len(c.data) == 0
}
