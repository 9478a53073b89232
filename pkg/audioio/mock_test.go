package audioio

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockSource_GeneratesFrames(t *testing.T) {
	cfg := DefaultConfig()

	src := NewMockSource(cfg, nil, WithFrameLimit(3))
	defer src.Close()

	for i := 0; i < 3; i++ {
		frame, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if len(frame) != cfg.FrameBytes() {
			t.Errorf("Expected %d bytes, got %d", cfg.FrameBytes(), len(frame))
		}
	}

	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after limit, got %v", err)
	}

	if got := src.Stats().Frames; got != 3 {
		t.Errorf("Expected 3 frames in stats, got %d", got)
	}
}

func TestMockSource_Script(t *testing.T) {
	cfg := DefaultConfig()
	first := make([]byte, cfg.FrameBytes())
	first[0] = 42

	src := NewMockSource(cfg, nil, WithScript(first))
	defer src.Close()

	frame, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if frame[0] != 42 {
		t.Errorf("Expected scripted frame first")
	}

	// Generated silence follows the script
	frame, err = src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if CalculateRMS(BytesToSamples(frame)) != 0 {
		t.Errorf("Expected silence after script")
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	frame, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	rms := CalculateRMS(BytesToSamples(frame))
	// RMS of a sine with amplitude A is A/sqrt(2)
	if rms < 0.3 || rms > 0.4 {
		t.Errorf("Expected RMS ~0.35, got %f", rms)
	}
}

func TestMockSource_ReadError(t *testing.T) {
	boom := errors.New("mic unplugged")
	src := NewMockSource(DefaultConfig(), nil, WithFrameLimit(1), WithReadError(boom))
	defer src.Close()

	if _, err := src.ReadFrame(); err != nil {
		t.Fatalf("First read failed: %v", err)
	}
	if _, err := src.ReadFrame(); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

func TestMockSource_Realtime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithRealtime())
	defer src.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := src.ReadFrame(); err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Expected paced reads, 3 frames took %v", elapsed)
	}
}

func TestMockSource_Closed(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil)
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if _, err := src.ReadFrame(); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Expected ErrDeviceClosed, got %v", err)
	}
}

func TestMockSink_RecordsFrames(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)

	frame := make([]byte, cfg.FrameBytes())
	frame[0] = 7
	if err := sink.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	// Mutating the caller's buffer must not affect the recording
	frame[0] = 9

	frames := sink.Frames()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0][0] != 7 {
		t.Errorf("Expected recorded copy, got %d", frames[0][0])
	}

	if err := sink.WriteFrame([]byte{1, 2}); err == nil {
		t.Error("Expected error for short frame")
	}
}

func TestMockSink_WriteError(t *testing.T) {
	cfg := DefaultConfig()
	boom := errors.New("speaker gone")
	sink := NewMockSink(cfg, nil, WithWriteError(2, boom))

	frame := make([]byte, cfg.FrameBytes())
	if err := sink.WriteFrame(frame); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := sink.WriteFrame(frame); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}
}

func TestMockSink_Close(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)
	_ = sink.Close()

	if !sink.Closed() {
		t.Error("Expected sink to be closed")
	}
	if err := sink.WriteFrame(make([]byte, cfg.FrameBytes())); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Expected ErrDeviceClosed, got %v", err)
	}
}

func TestNewSource_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Close()

	if src.Name() != "mock" {
		t.Errorf("Expected mock backend, got %s", src.Name())
	}

	cfg.Backend = "oss"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("Expected error for unsupported backend")
	}
}

func TestConfig_Frames(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.FrameSamples() != 720 {
		t.Errorf("Expected 720 samples per 30ms at 24kHz, got %d", cfg.FrameSamples())
	}
	if cfg.FrameBytes() != 1440 {
		t.Errorf("Expected 1440 bytes, got %d", cfg.FrameBytes())
	}
	if FrameBytes(16000, 30*time.Millisecond) != 960 {
		t.Errorf("Expected 960 bytes at 16kHz")
	}

	cfg.FrameDuration = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for zero frame duration")
	}
}

func TestAudioChunk(t *testing.T) {
	data := []byte{1, 0, 2, 0}
	chunk := NewChunk(data, 30)
	data[0] = 99

	if chunk.Bytes()[0] != 1 {
		t.Error("Chunk must copy its input")
	}
	if chunk.DurationMs() != 30 || chunk.Duration() != 30*time.Millisecond {
		t.Errorf("Unexpected duration %d", chunk.DurationMs())
	}
	if s := chunk.Samples(); len(s) != 2 || s[1] != 2 {
		t.Errorf("Unexpected samples %v", s)
	}
	if chunk.IsEmpty() || !NewChunk(nil, 0).IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}
