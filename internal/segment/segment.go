// Package segment turns a continuous stream of normalized mono samples into
// discrete speech segments, and buffers closed segments for transcription.
//
// The segmenter is an explicit two-state machine (silence, speech) driven by
// per-frame VAD decisions. Silence-to-speech opens a segment and backfills a
// pre-roll of recently buffered audio so word onsets are not clipped;
// speech-to-silence requires the silence to persist for a hangover window so
// short pauses do not split an utterance. Exactly one segment is open at any
// time, and ownership of a closed segment transfers to the caller.
package segment

import (
	"time"
)

// Segment is one contiguous span of speech audio bounded by silence. Once
// returned by the segmenter it has a single owner and is never mutated.
type Segment struct {
	// Samples is the mono PCM audio of the segment, including pre-roll and
	// trailing hangover silence.
	Samples []float32

	// SampleRate is the rate of Samples in Hz.
	SampleRate int

	// StartedAt marks when the segment opened, EndedAt when it closed.
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns the audio duration of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}
