// Package stt defines the Engine interface for speech-to-text backends.
//
// An STT engine is a batch transcriber: it accepts one complete utterance
// worth of mono PCM samples and returns the recognised text with an
// aggregate confidence. The engine is resource-heavy (a model loaded once at
// startup and held for the process lifetime) and is not required to be
// reentrant — the inference dispatcher serialises all access, so
// implementations may assume Transcribe is never called concurrently.
package stt

import (
	"context"
	"time"
)

// Result is the outcome of transcribing one utterance. Immutable once
// produced.
type Result struct {
	// Text is the recognised text, whitespace-trimmed. May be empty when
	// the engine recognised nothing.
	Text string

	// Confidence is the aggregate recognition confidence in [0.0, 1.0],
	// computed as the mean token probability across all recognised tokens.
	// Engines without token-level probabilities report 1.0.
	Confidence float64

	// Duration is the audio duration of the transcribed utterance.
	Duration time.Duration

	// CompletedAt marks when transcription finished.
	CompletedAt time.Time
}

// Engine is an exclusive-ownership batch transcription backend.
type Engine interface {
	// Transcribe runs inference over samples — normalised mono floats at
	// sampleRate Hz — using the given BCP-47 language code. Blocks until
	// inference completes or ctx is cancelled.
	//
	// Implementations may reject sample rates other than the model's fixed
	// input rate.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)

	// Close releases the model. The engine is unusable afterwards.
	Close() error
}
