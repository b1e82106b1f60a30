// Package command detects the configured trigger phrase in transcription
// results.
//
// Detection is a pure function of its inputs: the same transcript and policy
// always produce the same match, and nothing is mutated. Matching is
// two-stage — an exact case-insensitive substring check first, then a fuzzy
// fallback that slides a trigger-length token window across the transcript
// and scores it with Jaro-Winkler similarity. The fuzzy stage catches the
// common whisper misspellings of a trigger phrase ("hey computer" heard as
// "hey computor") without matching unrelated speech.
package command

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/sotto-voice/sotto/pkg/provider/stt"
)

// defaultFuzzyThreshold is the Jaro-Winkler similarity at or above which a
// token window counts as the trigger phrase.
const defaultFuzzyThreshold = 0.85

// Match is the outcome of trigger detection on one transcript.
type Match struct {
	// Matched is true when the trigger phrase was found and the transcript
	// confidence cleared the configured floor.
	Matched bool

	// Confidence is the transcript confidence the decision was based on.
	Confidence float64
}

// Detector checks transcripts for a trigger phrase. The zero value is not
// usable; construct with [New]. Detector is a value type and safe for
// concurrent use.
type Detector struct {
	fuzzyThreshold float64
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithFuzzyThreshold overrides the Jaro-Winkler similarity threshold for the
// fuzzy matching stage. The default is 0.85.
func WithFuzzyThreshold(th float64) Option {
	return func(d *Detector) {
		if th > 0 && th <= 1 {
			d.fuzzyThreshold = th
		}
	}
}

// New returns a Detector.
func New(opts ...Option) Detector {
	d := Detector{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(&d)
	}
	return d
}

// Detect reports whether res contains the trigger phrase. A match requires
// both the phrase to be present (exactly or fuzzily) and res.Confidence to
// be at least minConfidence. An empty trigger never matches.
func (d Detector) Detect(res stt.Result, trigger string, minConfidence float64) Match {
	m := Match{Confidence: res.Confidence}

	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" {
		return m
	}
	text := strings.ToLower(res.Text)

	if res.Confidence < minConfidence {
		return m
	}

	// Stage 1: exact substring.
	if strings.Contains(text, trigger) {
		m.Matched = true
		return m
	}

	// Stage 2: fuzzy token-window scan.
	if d.fuzzyScan(text, trigger) {
		m.Matched = true
	}
	return m
}

// fuzzyScan slides a window of len(trigger tokens) across the transcript
// tokens and reports whether any window scores at or above the fuzzy
// threshold against the trigger phrase.
func (d Detector) fuzzyScan(text, trigger string) bool {
	triggerTokens := strings.Fields(trigger)
	textTokens := strings.Fields(text)
	if len(triggerTokens) == 0 || len(textTokens) < len(triggerTokens) {
		return false
	}

	for i := 0; i+len(triggerTokens) <= len(textTokens); i++ {
		window := strings.Join(textTokens[i:i+len(triggerTokens)], " ")
		if matchr.JaroWinkler(window, trigger, false) >= d.fuzzyThreshold {
			return true
		}
	}
	return false
}
