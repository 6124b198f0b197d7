package audio

import "math"

// DefaultNormalizeTarget caps the post-mix peak amplitude when
// normalization is enabled.
const DefaultNormalizeTarget = 0.9

// Mix combines two sample arrays into one. The shorter input is
// zero-padded to the longer length, then each output sample is the
// weighted sum of the two inputs. With normalize set, the result is
// rescaled so its peak absolute value does not exceed
// DefaultNormalizeTarget; mixes already under the target pass through
// untouched, preserving the relative level of quieter signals.
func Mix(a, b []float32, weightA, weightB float32, normalize bool) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := range out {
		var va, vb float32
		if i < len(a) {
			va = a[i]
		}
		if i < len(b) {
			vb = b[i]
		}
		out[i] = va*weightA + vb*weightB
	}
	if normalize {
		normalizePeak(out, DefaultNormalizeTarget)
	}
	return out
}

// normalizePeak rescales samples in place so the peak absolute value does
// not exceed target. No-op when the peak is already under the target.
func normalizePeak(samples []float32, target float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 || peak <= target {
		return
	}
	scale := target / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// SoftClip compresses samples whose magnitude exceeds threshold toward the
// threshold using a saturating tanh curve. Samples under the threshold
// pass through unchanged; the curve preserves sign and monotonicity, so
// louder inputs still map to louder outputs without hard clipping.
func SoftClip(samples []float32, threshold float32) []float32 {
	out := make([]float32, len(samples))
	if threshold >= 1 {
		copy(out, samples)
		return out
	}
	if threshold < 0 {
		threshold = 0
	}
	knee := 1 - threshold
	for i, s := range samples {
		abs := float32(math.Abs(float64(s)))
		if abs < threshold {
			out[i] = s
			continue
		}
		shaped := threshold + knee*float32(math.Tanh(float64((abs-threshold)/knee)))
		if s < 0 {
			shaped = -shaped
		}
		out[i] = shaped
	}
	return out
}

// RMSLevel returns the root-mean-square level of samples in dBFS.
// Empty or all-zero input returns negative infinity.
func RMSLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// PeakLevel returns the peak sample magnitude in dBFS.
// Empty or all-zero input returns negative infinity.
func PeakLevel(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// Resample converts samples from one rate to another. Upsampling linearly
// interpolates between neighboring input samples; downsampling decimates
// by the rate ratio; identical rates return a copy.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return []float32{}
	}
	if fromRate == toRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return []float32{}
	}
	out := make([]float32, outLen)

	if toRate > fromRate {
		for i := range out {
			pos := float64(i) * ratio
			idx := int(pos)
			if idx >= len(samples)-1 {
				out[i] = samples[len(samples)-1]
				continue
			}
			frac := float32(pos - float64(idx))
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		}
		return out
	}

	for i := range out {
		idx := int(float64(i) * ratio)
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		out[i] = samples[idx]
	}
	return out
}

// Float32ToInt16 converts normalized float samples to 16-bit PCM,
// clamping to [-1, 1] first.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Int16ToFloat32 converts 16-bit PCM samples to normalized floats.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
