package audio

// Int16ToFloat32 converts signed 16-bit PCM samples to float32 samples
// normalised to the range [-1.0, 1.0].
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts normalised float32 samples to signed 16-bit PCM,
// clamping values outside [-1.0, 1.0] to the representable range.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Int16ToBytes serialises 16-bit PCM samples as little-endian bytes, the
// layout expected by frame-level detectors that operate on raw PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DownmixMono collapses interleaved multi-channel samples to mono by
// averaging all channels per frame. When channels is 1 the input slice is
// returned unchanged (no copy), preserving the pass-through identity.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
