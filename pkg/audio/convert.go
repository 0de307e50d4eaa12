package audio

import (
	"log/slog"
	"sync"
)

// Normalizer converts interleaved float samples from a device format to a
// mono target rate. It logs a warning on the first format mismatch.
// Create one per stream; not safe for concurrent use.
type Normalizer struct {
	TargetRate int
	warned     sync.Once
}

// Normalize returns samples recorded in src as mono at n.TargetRate. When src
// already matches the target the input slice is returned unchanged.
// Conversion order: downmix first, then resample.
func (n *Normalizer) Normalize(samples []float32, src Format) []float32 {
	if src.Channels <= 1 && src.SampleRate == n.TargetRate {
		return samples
	}
	n.warned.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", Format{SampleRate: n.TargetRate, Channels: 1}.String(),
		)
	})
	out := samples
	if src.Channels > 1 {
		out = Downmix(out, src.Channels)
	}
	return ResampleLinear(out, src.SampleRate, n.TargetRate)
}

// Downmix averages each group of interleaved channels into one mono sample,
// clamping to [-1, 1]. Trailing samples that do not fill a whole group are
// dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		avg := sum / float32(channels)
		if avg > 1 {
			avg = 1
		} else if avg < -1 {
			avg = -1
		}
		out[i] = avg
	}
	return out
}

// ResampleLinear resamples mono samples from srcRate to dstRate using linear
// interpolation. Invalid or equal rates return the input unchanged.
func ResampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dst := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}
	out := make([]float32, dst)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
