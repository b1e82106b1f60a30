// Package resample converts arbitrary-rate, arbitrary-channel capture audio
// into the fixed mono rate required by the transcription engine.
//
// Rate conversion uses linear interpolation with a fractional read position
// that is carried across batch boundaries, so a stream split into many small
// batches produces bit-identical output to the same stream processed as one
// batch. When the input already matches the target rate and is mono, Process
// is an exact pass-through.
//
// A Resampler is not safe for concurrent use; the pipeline owns one per
// capture session and calls Reset between sessions.
package resample

import (
	"fmt"

	"github.com/sotto-voice/sotto/pkg/audio"
)

// Resampler converts interleaved capture batches to mono samples at a fixed
// target rate. The zero value is not usable; construct with New.
type Resampler struct {
	targetRate int

	// Carry state for phase-continuous interpolation across batches.
	srcRate int     // rate of the stream currently being converted
	last    float32 // final input sample of the previous batch
	pos     float64 // fractional read position relative to last
	primed  bool    // true once at least one batch has been consumed
}

// New creates a Resampler producing mono output at targetRate Hz.
func New(targetRate int) (*Resampler, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("resample: target rate %d must be positive", targetRate)
	}
	return &Resampler{targetRate: targetRate}, nil
}

// TargetRate returns the fixed output rate in Hz.
func (r *Resampler) TargetRate() int { return r.targetRate }

// Process converts one capture batch to mono samples at the target rate,
// preserving temporal order. Multi-channel input is downmixed by averaging
// channels per frame before rate conversion.
//
// When batch.SampleRate equals the target rate and the input is mono, the
// batch's sample slice is returned unchanged (identity transform, no copy).
//
// Returns an error if the batch is tagged with a non-positive rate or
// channel count.
func (r *Resampler) Process(batch audio.FrameBatch) ([]float32, error) {
	if batch.SampleRate <= 0 {
		return nil, fmt.Errorf("resample: batch sample rate %d must be positive", batch.SampleRate)
	}
	if batch.Channels <= 0 {
		return nil, fmt.Errorf("resample: batch channel count %d must be positive", batch.Channels)
	}
	if len(batch.Samples) == 0 {
		return nil, nil
	}

	mono := audio.DownmixMono(batch.Samples, batch.Channels)
	if batch.SampleRate == r.targetRate {
		return mono, nil
	}

	// A rate change mid-session invalidates the interpolation phase.
	if r.primed && batch.SampleRate != r.srcRate {
		r.Reset()
	}
	r.srcRate = batch.SampleRate

	return r.interpolate(mono), nil
}

// interpolate performs linear rate conversion over the virtual input stream
// [r.last, mono...], advancing the fractional read position by
// srcRate/targetRate per output sample. The final input sample and the
// residual position are retained for the next batch.
func (r *Resampler) interpolate(mono []float32) []float32 {
	var src []float32
	if r.primed {
		src = make([]float32, 0, len(mono)+1)
		src = append(src, r.last)
		src = append(src, mono...)
	} else {
		src = mono
		r.primed = true
	}

	step := float64(r.srcRate) / float64(r.targetRate)
	out := make([]float32, 0, int(float64(len(mono))/step)+1)

	pos := r.pos
	for int(pos)+1 < len(src) {
		i := int(pos)
		frac := float32(pos - float64(i))
		out = append(out, src[i]+(src[i+1]-src[i])*frac)
		pos += step
	}

	// Rebase the read position so index 0 refers to the retained last sample.
	r.last = src[len(src)-1]
	r.pos = pos - float64(len(src)-1)

	return out
}

// Reset clears the fractional-sample carry. Call between capture sessions so
// stale phase from a previous stream cannot bleed into a new one.
func (r *Resampler) Reset() {
	r.srcRate = 0
	r.last = 0
	r.pos = 0
	r.primed = false
}
