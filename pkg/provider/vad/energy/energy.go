// Package energy implements a dependency-free VAD engine based on
// root-mean-square frame energy.
//
// The classifier maps a frame's RMS level onto a pseudo-probability by
// scaling against a reference speech level, so it plugs into the same
// threshold contract as model-based detectors. It is the default backend:
// crude but deterministic, with zero startup cost and no model assets.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

// defaultSpeechRMS is the normalised RMS level treated as unambiguous
// speech. 0.05 corresponds to roughly 1600 in 16-bit PCM units — quiet but
// clearly voiced audio; typical silence floors sit an order of magnitude
// below.
const defaultSpeechRMS = 0.05

// Compile-time assertion that Engine implements vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSpeechRMS overrides the reference RMS level mapped to probability 1.0.
// Lower values make the detector more sensitive.
func WithSpeechRMS(rms float64) Option {
	return func(e *Engine) { e.speechRMS = rms }
}

// Engine creates energy-based VAD sessions.
type Engine struct {
	speechRMS float64
}

// New returns an energy Engine with the supplied options applied.
func New(opts ...Option) *Engine {
	e := &Engine{speechRMS: defaultSpeechRMS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a session. The energy detector is stateless per frame,
// so the session only carries configuration.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e.speechRMS <= 0 {
		return nil, fmt.Errorf("energy: speech RMS reference must be positive")
	}
	return &session{cfg: cfg, speechRMS: e.speechRMS}, nil
}

type session struct {
	cfg       vad.Config
	speechRMS float64

	mu     sync.Mutex
	closed bool
}

// ProcessFrame classifies the frame by RMS energy. Probability is the
// frame's RMS scaled by the reference speech level, clamped to [0, 1].
func (s *session) ProcessFrame(frame []float32) (vad.Decision, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return vad.Decision{}, fmt.Errorf("energy: session is closed")
	}
	if len(frame) != s.cfg.FrameSize {
		return vad.Decision{}, fmt.Errorf("energy: frame size %d, want %d", len(frame), s.cfg.FrameSize)
	}

	p := rms(frame) / s.speechRMS
	if p > 1 {
		p = 1
	}
	return vad.Decision{Speech: p >= s.cfg.Threshold, Probability: p}, nil
}

// Reset is a no-op: the detector keeps no cross-frame state.
func (s *session) Reset() {}

// Close marks the session closed. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rms returns the root-mean-square level of normalised samples.
func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
