package pipeline

import "time"

// State is the controller lifecycle state. There are exactly two legal
// values; transitions between them are strictly serialized.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// EventKind discriminates the entries of the event stream.
type EventKind string

const (
	// EventTranscript carries the recognised text of one speech segment.
	EventTranscript EventKind = "transcript"

	// EventCommand is raised when a transcript matched the trigger phrase.
	EventCommand EventKind = "command"

	// EventError reports a dropped segment or a terminal session failure.
	EventError EventKind = "error"

	// EventState announces a lifecycle transition.
	EventState EventKind = "state"
)

// Event is one entry of the pipeline's outbound stream. Events are emitted
// in segment-completion order and never reordered.
type Event struct {
	Kind EventKind `json:"kind"`

	// Text and Confidence are set for transcript and command events.
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Matched is set for command events.
	Matched bool `json:"matched,omitempty"`

	// Error is set for error events.
	Error string `json:"error,omitempty"`

	// State is set for state events.
	State State `json:"state,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Sink receives pipeline events. Publish is called from the pipeline's
// worker goroutines and must not block for long; slow consumers buffer or
// drop on their side of the boundary.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }
