// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier (an energy detector,
// WebRTC VAD, or a Silero ONNX model) and surfaces it as a stateful,
// per-stream session. Each session maintains its own internal state
// (windowing buffers, recurrent model state) so that independent audio
// streams can be processed concurrently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// classification, making it suitable for the real-time segmentation stage
// that gates transcription input. An engine that cannot classify a frame
// within the frame's own duration is unusable for live audio; the pipeline
// verifies this at startup and refuses to record rather than retrying at
// runtime.
//
// Implementations must be safe for concurrent use across different
// sessions. A single SessionHandle must not be shared across goroutines.
package vad

import "fmt"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSize is the number of mono samples per frame. Most detectors
	// operate on fixed 10–30 ms frames; ProcessFrame returns an error when
	// the supplied frame does not match this size.
	FrameSize int

	// Threshold is the speech probability at or above which a frame is
	// classified as speech. Range: [0.0, 1.0]. Typical: 0.5–0.6.
	Threshold float64
}

// Validate checks that the config is internally coherent.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate %d must be positive", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("vad: frame size %d must be positive", c.FrameSize)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("vad: threshold %.2f out of range [0, 1]", c.Threshold)
	}
	return nil
}

// Decision is the classification of a single audio frame.
type Decision struct {
	// Speech reports whether the frame was classified as speech.
	Speech bool

	// Probability is the speech probability in [0.0, 1.0]. Binary detectors
	// report 0 or 1.
	Probability float64
}

// SessionHandle is an active VAD session for a single audio stream. Each
// session owns its detection state; Reset clears that state without closing
// the session.
type SessionHandle interface {
	// ProcessFrame classifies one frame of normalised mono samples at the
	// configured rate and frame size. It must not block; classification
	// completes synchronously within the caller's real-time budget.
	ProcessFrame(frame []float32) (Decision, error)

	// Reset clears accumulated detection state (windowing buffers, model
	// state) without closing the session. Use between utterance streams so
	// stale state cannot affect new audio.
	Reset()

	// Close releases session resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
// Implementations must allow concurrent NewSession calls.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is unsupported by the backend.
	NewSession(cfg Config) (SessionHandle, error)
}
