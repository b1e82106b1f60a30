// Package audio defines the core audio data types shared by the sotto
// capture and transcription pipeline, plus PCM conversion helpers.
//
// Audio flows through the pipeline as [FrameBatch] values: short, ordered
// runs of samples tagged with the rate and channel layout of the device that
// produced them. A batch is owned by the capture callback until it is handed
// off downstream and is never mutated afterwards.
package audio

import "time"

// FrameBatch is one contiguous run of PCM samples as delivered by a capture
// device. Samples are interleaved when Channels > 1 (frame-major order:
// ch0, ch1, ch0, ch1, ...).
type FrameBatch struct {
	// Samples holds normalised float samples in [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz at which Samples were captured (e.g., 44100, 48000).
	SampleRate int

	// Channels is the interleaved channel count: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when the batch was captured.
	Timestamp time.Time
}

// Frames returns the number of sample frames in the batch (samples per
// channel). Returns 0 when Channels is not positive.
func (b FrameBatch) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the wall-clock span of audio the batch covers.
func (b FrameBatch) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// BatchFromInt16 converts signed 16-bit PCM samples into a FrameBatch,
// normalising to [-1.0, 1.0]. Use this at capture boundaries for devices
// that deliver integer PCM.
func BatchFromInt16(samples []int16, sampleRate, channels int, ts time.Time) FrameBatch {
	return FrameBatch{
		Samples:    Int16ToFloat32(samples),
		SampleRate: sampleRate,
		Channels:   channels,
		Timestamp:  ts,
	}
}
