// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script Decision responses and inspect the frames that were
// submitted for classification.
//
// Example:
//
//	sess := &mock.Session{Script: []vad.Decision{
//	    {Speech: true, Probability: 0.9},
//	    {Speech: false, Probability: 0.1},
//	}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session is
	// returned instead.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle. Decisions are
// served from Script in order; once the script is exhausted, Fallback is
// returned for every further frame.
type Session struct {
	mu sync.Mutex

	// Script is the ordered list of decisions to return.
	Script []vad.Decision

	// Fallback is returned once Script is exhausted (or for all frames when
	// Script is empty).
	Fallback vad.Decision

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames [][]float32

	// ResetCalls and CloseCalls count lifecycle invocations.
	ResetCalls int
	CloseCalls int

	next int
}

// ProcessFrame records the frame and returns the next scripted decision.
func (s *Session) ProcessFrame(frame []float32) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Frames = append(s.Frames, append([]float32(nil), frame...))
	if s.ProcessFrameErr != nil {
		return vad.Decision{}, s.ProcessFrameErr
	}
	if s.next < len(s.Script) {
		d := s.Script[s.next]
		s.next++
		return d, nil
	}
	return s.Fallback, nil
}

// Reset increments ResetCalls. The script position is not rewound.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

// Close increments CloseCalls and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}
