package audioio

import (
	"fmt"
	"sync"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// HQResampler is a soxr-style polyphase resampler. It keeps filter state
// between frames, so one instance must only be fed one continuous stream.
type HQResampler struct {
	mu        sync.Mutex
	resampler resampling.Resampler
	rsConfig  *resampling.Config
	from, to  int
	outBytes  int
}

// NewHQResampler creates a high-quality mono resampler for frames of the given duration.
func NewHQResampler(fromRate, toRate int, frame time.Duration) (*HQResampler, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("resample: rates must be positive (from=%d to=%d)", fromRate, toRate)
	}

	r := &HQResampler{
		from:     fromRate,
		to:       toRate,
		outBytes: FrameBytes(toRate, frame),
	}

	if fromRate != toRate {
		r.rsConfig = &resampling.Config{
			InputRate:  float64(fromRate),
			OutputRate: float64(toRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		rs, err := resampling.New(r.rsConfig)
		if err != nil {
			return nil, fmt.Errorf("create resampler: %w", err)
		}
		r.resampler = rs
	}

	return r, nil
}

// Reset rebuilds the filter so no history from earlier frames leaks into
// the next one.
func (r *HQResampler) Reset() error {
	if r.rsConfig == nil {
		return nil
	}
	rs, err := resampling.New(r.rsConfig)
	if err != nil {
		return fmt.Errorf("reset resampler: %w", err)
	}
	r.mu.Lock()
	r.resampler = rs
	r.mu.Unlock()
	return nil
}

// Process resamples one frame. Filter delay means early frames come out
// short; they are zero-padded to OutputBytes().
func (r *HQResampler) Process(frame []byte) ([]byte, error) {
	if r.rsConfig == nil {
		return FitFrame(frame, r.outBytes), nil
	}

	input := make([]float64, len(frame)/2)
	for i := range input {
		s := int16(frame[i*2]) | int16(frame[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	r.mu.Lock()
	output, err := r.resampler.Process(input)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := clampInt16(s * 32767.0)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}

	return FitFrame(out, r.outBytes), nil
}

// OutputBytes returns the size of every frame Process returns.
func (r *HQResampler) OutputBytes() int {
	return r.outBytes
}

// NewResampler builds the named resampler ("hq" or "linear").
func NewResampler(kind string, fromRate, toRate int, frame time.Duration) (Resampler, error) {
	switch kind {
	case "", "hq":
		return NewHQResampler(fromRate, toRate, frame)
	case "linear":
		return NewLinearResampler(fromRate, toRate, frame)
	default:
		return nil, fmt.Errorf("unknown resampler %q", kind)
	}
}

var (
	_ Resampler = (*HQResampler)(nil)
	_ Resampler = (*LinearResampler)(nil)
)
