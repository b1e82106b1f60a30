// Package mock provides a scriptable test double for the capture.Device
// interface.
//
// Feed batches with Emit, end the stream with CloseFrames (optionally with a
// terminal error), and inspect lifecycle calls afterwards.
package mock

import (
	"context"
	"sync"

	"github.com/sotto-voice/sotto/pkg/audio"
	"github.com/sotto-voice/sotto/pkg/audio/capture"
)

// Compile-time assertion that Device implements capture.Device.
var _ capture.Device = (*Device)(nil)

// Device is a mock capture device driven entirely by the test.
type Device struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// FollowCtx, when set before Start, ends the stream as soon as the
	// context passed to Start is cancelled — the same binding a real
	// driver read loop has to its context.
	FollowCtx bool

	// StreamErr is reported by Err after CloseFrames(err) is used.
	streamErr error

	frames chan audio.FrameBatch
	closed bool

	// StartCalls and StopCalls count lifecycle invocations.
	StartCalls int
	StopCalls  int
}

// New creates a mock device with a frame buffer of the given depth.
func New(depth int) *Device {
	if depth <= 0 {
		depth = 64
	}
	return &Device{frames: make(chan audio.FrameBatch, depth)}
}

// Start records the call and returns StartErr. With FollowCtx set, the
// stream closes cleanly when ctx is cancelled.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	d.StartCalls++
	err := d.StartErr
	follow := d.FollowCtx
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if follow {
		go func() {
			<-ctx.Done()
			d.CloseFrames(nil)
		}()
	}
	return nil
}

// Frames returns the scripted batch channel.
func (d *Device) Frames() <-chan audio.FrameBatch { return d.frames }

// Err returns the terminal error set by CloseFrames.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamErr
}

// Stop records the call and closes the frame channel if still open.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StopCalls++
	if !d.closed {
		d.closed = true
		close(d.frames)
	}
	return nil
}

// Emit queues one batch for the consumer. Panics if called after the stream
// was closed, mirroring a real device writing to a closed stream.
func (d *Device) Emit(b audio.FrameBatch) {
	d.frames <- b
}

// CloseFrames ends the stream, optionally recording err as the terminal
// stream failure (nil means a clean stop).
func (d *Device) CloseFrames(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.streamErr = err
	close(d.frames)
}
