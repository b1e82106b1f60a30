// Package mock provides a scriptable test double for the stt.Engine
// interface.
//
// Results are served from Script in order; once exhausted, Fallback is
// returned. Set Delay to simulate slow inference when testing drain and
// backpressure behaviour.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sotto-voice/sotto/pkg/provider/stt"
)

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the submitted audio.
	Samples []float32

	// SampleRate and Language are the submitted parameters.
	SampleRate int
	Language   string
}

// Step is one scripted Transcribe outcome.
type Step struct {
	Result stt.Result
	Err    error
}

// Engine is a mock stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Script is the ordered list of outcomes to return.
	Script []Step

	// Fallback is returned once Script is exhausted.
	Fallback Step

	// Delay, when non-zero, makes each Transcribe call sleep before
	// returning (interruptible by ctx).
	Delay time.Duration

	// TranscribeCalls records every invocation in order.
	TranscribeCalls []TranscribeCall

	// CloseCalls counts Close invocations.
	CloseCalls int

	next int
}

// Transcribe records the call, optionally sleeps for Delay, and returns the
// next scripted outcome.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	e.mu.Lock()
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{
		Samples:    append([]float32(nil), samples...),
		SampleRate: sampleRate,
		Language:   language,
	})
	step := e.Fallback
	if e.next < len(e.Script) {
		step = e.Script[e.next]
		e.next++
	}
	delay := e.Delay
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}

	if step.Err != nil {
		return stt.Result{}, step.Err
	}
	res := step.Result
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	return res, nil
}

// Close increments CloseCalls and returns nil.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}

// Calls returns a snapshot of recorded Transcribe calls.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TranscribeCall(nil), e.TranscribeCalls...)
}
