// Package webrtc implements a VAD engine backed by the WebRTC voice
// activity detector (libfvad via go-webrtcvad).
//
// The WebRTC detector is a binary classifier: probabilities are reported as
// 0.0 or 1.0 and the session threshold only distinguishes "always silence"
// (threshold > 1 is rejected by config validation, so in practice every
// speech verdict passes). Aggressiveness is tuned with the engine-level
// mode instead.
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/sotto-voice/sotto/pkg/audio"
	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// validRates lists the sample rates the WebRTC detector accepts.
var validRates = []int{8000, 16000, 32000, 48000}

// Engine creates WebRTC VAD sessions. Each session owns its own detector
// instance, so sessions are independent.
type Engine struct {
	mode int
}

// New returns an Engine with the given aggressiveness mode (0 = least
// aggressive about classifying silence, 3 = most). Out-of-range modes are
// clamped.
func New(mode int) *Engine {
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	return &Engine{mode: mode}
}

// Mode returns the configured aggressiveness.
func (e *Engine) Mode() int { return e.mode }

// NewSession creates a detector session. The config's sample rate must be
// one of 8000/16000/32000/48000 Hz and the frame size must correspond to
// 10, 20, or 30 ms at that rate — these are hard requirements of the
// underlying detector.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !rateSupported(cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc: sample rate %d unsupported, must be one of %v", cfg.SampleRate, validRates)
	}
	frameMs := cfg.FrameSize * 1000 / cfg.SampleRate
	if frameMs != 10 && frameMs != 20 && frameMs != 30 || cfg.FrameSize*1000%cfg.SampleRate != 0 {
		return nil, fmt.Errorf("webrtc: frame size %d samples (%d ms at %d Hz) unsupported, must be 10, 20, or 30 ms",
			cfg.FrameSize, frameMs, cfg.SampleRate)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create detector: %w", err)
	}
	if err := det.SetMode(e.mode); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", e.mode, err)
	}

	return &session{cfg: cfg, det: det}, nil
}

type session struct {
	cfg vad.Config

	mu     sync.Mutex
	det    *webrtcvad.VAD
	closed bool
}

// ProcessFrame converts the frame to 16-bit little-endian PCM and runs the
// detector. The verdict is binary; Probability mirrors it as 0 or 1.
func (s *session) ProcessFrame(frame []float32) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Decision{}, fmt.Errorf("webrtc: session is closed")
	}
	if len(frame) != s.cfg.FrameSize {
		return vad.Decision{}, fmt.Errorf("webrtc: frame size %d, want %d", len(frame), s.cfg.FrameSize)
	}

	pcm := audio.Int16ToBytes(audio.Float32ToInt16(frame))
	active, err := s.det.Process(s.cfg.SampleRate, pcm)
	if err != nil {
		return vad.Decision{}, fmt.Errorf("webrtc: process frame: %w", err)
	}

	if active {
		return vad.Decision{Speech: true, Probability: 1}, nil
	}
	return vad.Decision{Speech: false, Probability: 0}, nil
}

// Reset is a no-op: the detector is effectively stateless between frames.
func (s *session) Reset() {}

// Close marks the session closed. The underlying detector needs no explicit
// teardown.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func rateSupported(rate int) bool {
	for _, r := range validRates {
		if rate == r {
			return true
		}
	}
	return false
}
