package audioio

import (
	"fmt"
	"math"
	"time"
)

// Resampler converts fixed-size PCM16 frames from one sample rate to another.
// The output of Process is always exactly OutputBytes() long. Reset drops
// any filter history before a discontinuity in the input.
type Resampler interface {
	Process(frame []byte) ([]byte, error)
	OutputBytes() int
	Reset() error
}

// LinearResampler is a stateless Resampler based on linear interpolation.
type LinearResampler struct {
	from, to int
	outBytes int
}

// NewLinearResampler creates a linear resampler for frames of the given duration.
func NewLinearResampler(fromRate, toRate int, frame time.Duration) (*LinearResampler, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("resample: rates must be positive (from=%d to=%d)", fromRate, toRate)
	}
	return &LinearResampler{
		from:     fromRate,
		to:       toRate,
		outBytes: FrameBytes(toRate, frame),
	}, nil
}

// Process resamples one frame and fits it to the output frame size.
func (r *LinearResampler) Process(frame []byte) ([]byte, error) {
	return FitFrame(ResampleBytes(frame, r.from, r.to), r.outBytes), nil
}

// OutputBytes returns the size of every frame Process returns.
func (r *LinearResampler) OutputBytes() int {
	return r.outBytes
}

// Reset is a no-op; the linear resampler keeps no history.
func (r *LinearResampler) Reset() error {
	return nil
}

// Resample converts audio from one sample rate to another using linear interpolation.
// This is a simple resampler suitable for speech audio.
// For higher quality, use HQResampler.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}

	if len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)

	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}

	return result
}

// ResampleBytes resamples raw PCM16 bytes.
func ResampleBytes(data []byte, fromRate, toRate int) []byte {
	samples := BytesToSamples(data)
	resampled := Resample(samples, fromRate, toRate)
	return SamplesToBytes(resampled)
}

// FitFrame zero-pads or truncates data to exactly n bytes.
func FitFrame(data []byte, n int) []byte {
	if len(data) == n {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

// Attenuate scales every sample by gain, clamping to the int16 range.
// Used to damp acoustic echo of the assistant before voice detection.
func Attenuate(data []byte, gain float64) []byte {
	if gain == 1 {
		return data
	}
	samples := BytesToSamples(data)
	for i, s := range samples {
		samples[i] = clampInt16(float64(s) * gain)
	}
	return SamplesToBytes(samples)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// BytesToFloat32 converts PCM16 bytes to samples normalized to [-1, 1).
func BytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToBytes converts normalized samples back to PCM16 bytes with clamping.
func Float32ToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, f := range samples {
		s := clampInt16(float64(f) * 32767)
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// CalculateRMS calculates the root mean square of samples.
// Returns a value between 0.0 and 1.0.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / 32767
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
