// Package capture abstracts microphone input behind the [Device] interface.
//
// A Device is a hardware-driven producer: once started it emits
// [audio.FrameBatch] values on a bounded channel at the cadence of the
// underlying driver callback. The producer side never blocks — when the
// consumer falls behind, batches are dropped at the device boundary and
// counted, because stalling a capture callback corrupts the stream for
// every later batch.
//
// The portaudio-backed implementation lives in this package; a scriptable
// test double lives in the mock subpackage.
package capture

import (
	"context"
	"errors"

	"github.com/sotto-voice/sotto/pkg/audio"
)

// ErrDeviceUnavailable is returned by Start when no usable input device can
// be opened.
var ErrDeviceUnavailable = errors.New("capture: no input device available")

// Config holds the parameters for opening an input device.
type Config struct {
	// DeviceName selects a specific input device by name. Empty selects the
	// host's default input device.
	DeviceName string

	// SampleRate is the capture rate in Hz (e.g., 44100).
	SampleRate int

	// Channels is the number of input channels to record (1 = mono).
	Channels int

	// FramesPerBuffer is the number of sample frames delivered per batch.
	FramesPerBuffer int

	// QueueDepth is the capacity of the outgoing batch channel. When the
	// consumer lags by more than this many batches, new batches are dropped.
	// Defaults to 64 when zero.
	QueueDepth int
}

// Device is an exclusive-ownership handle on one audio input stream.
//
// A Device is single-session: Start may be called once; after Stop the
// device cannot be restarted. The pipeline controller constructs a fresh
// Device per recording session.
type Device interface {
	// Start opens the underlying stream and begins emitting batches on the
	// channel returned by Frames. Returns ErrDeviceUnavailable (possibly
	// wrapped) when no input device can be opened.
	Start(ctx context.Context) error

	// Frames returns the channel carrying captured batches. The channel is
	// closed when the device is stopped or fails; after it closes, Err
	// reports the cause.
	Frames() <-chan audio.FrameBatch

	// Err returns the terminal stream error, or nil if the device stopped
	// cleanly. Only meaningful after Frames has been closed.
	Err() error

	// Stop closes the stream and releases the device. Safe to call more
	// than once.
	Stop() error
}
