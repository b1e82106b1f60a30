// Package whisper implements the stt.Engine interface with the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// must be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once in New and held for the engine's lifetime. Each
// Transcribe call creates a fresh whisper context from the shared model;
// contexts are not thread-safe, but the dispatcher serialises Transcribe
// calls so no additional locking is needed.
//
// Confidence policy: the result confidence is the mean token probability
// (whisper.cpp's per-token P) across every token of every decoded segment,
// which whisper.cpp already reports in [0, 1]. The mean — rather than the
// minimum — was chosen so a single garbled token does not veto an otherwise
// confident utterance; trigger detection applies its own floor on top.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sotto-voice/sotto/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Engine implements stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the default BCP-47 language code used when Transcribe
// is called with an empty language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// Engine transcribes utterances with a whisper.cpp model.
type Engine struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model at modelPath. The caller must Close the
// engine when done; the model is the process's single most expensive
// resource.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Transcribe runs whisper.cpp inference over the samples. The sample rate
// must be whisper.cpp's fixed input rate (16 kHz); anything else is a
// caller bug, not a recoverable condition.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context cancelled: %w", err)
	}
	if sampleRate != whisperlib.SampleRate {
		return stt.Result{}, fmt.Errorf("whisper: sample rate %d, model requires %d", sampleRate, whisperlib.SampleRate)
	}
	if len(samples) == 0 {
		return stt.Result{}, errors.New("whisper: no samples")
	}
	if language == "" {
		language = e.language
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts   []string
		probSum float64
		tokens  int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			probSum += float64(tok.P)
			tokens++
		}
	}

	return stt.Result{
		Text:        strings.Join(parts, " "),
		Confidence:  meanProbability(probSum, tokens),
		Duration:    time.Duration(len(samples)) * time.Second / whisperlib.SampleRate,
		CompletedAt: time.Now(),
	}, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// meanProbability converts a token probability sum into the aggregate
// confidence, clamped into [0, 1]. Zero tokens yields zero confidence —
// a result with no tokens carries no evidence.
func meanProbability(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	if mean < 0 {
		return 0
	}
	if mean > 1 {
		return 1
	}
	return mean
}
