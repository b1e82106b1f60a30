package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sotto-voice/sotto/pkg/audio"
)

const defaultQueueDepth = 64

// Compile-time assertion that PortAudioDevice implements Device.
var _ Device = (*PortAudioDevice)(nil)

// PortAudioDevice captures microphone audio through PortAudio. Each device
// initialises the PortAudio runtime on Start and terminates it on Stop, so
// at most one PortAudioDevice should be active per process.
type PortAudioDevice struct {
	cfg Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	stopped bool

	frames  chan audio.FrameBatch
	err     error
	dropped uint64

	wg sync.WaitGroup
}

// NewPortAudio creates an unopened device with the given configuration.
// Validation of rates and channel counts is deferred to Start, where the
// host's device capabilities are known.
func NewPortAudio(cfg Config) *PortAudioDevice {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	return &PortAudioDevice{
		cfg:    cfg,
		frames: make(chan audio.FrameBatch, cfg.QueueDepth),
	}
}

// Start initialises PortAudio, opens the configured (or default) input
// stream, and launches the read loop. The read loop copies each buffer and
// hands it off without blocking; batches the consumer cannot keep up with
// are dropped and counted.
func (d *PortAudioDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running || d.stopped {
		return fmt.Errorf("capture: device already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}

	buffer := make([]float32, d.cfg.FramesPerBuffer*d.cfg.Channels)

	stream, err := d.openStream(buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	d.stream = stream
	d.running = true

	d.wg.Add(1)
	go d.readLoop(ctx, buffer)

	return nil
}

// openStream opens the named device when configured, falling back to the
// default input device otherwise.
func (d *PortAudioDevice) openStream(buffer []float32) (*portaudio.Stream, error) {
	if d.cfg.DeviceName != "" && d.cfg.DeviceName != "default" {
		dev, err := findInputDevice(d.cfg.DeviceName)
		if err != nil {
			return nil, err
		}
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   dev,
				Channels: d.cfg.Channels,
				Latency:  dev.DefaultLowInputLatency,
			},
			SampleRate:      float64(d.cfg.SampleRate),
			FramesPerBuffer: d.cfg.FramesPerBuffer,
		}
		return portaudio.OpenStream(params, buffer)
	}
	return portaudio.OpenDefaultStream(
		d.cfg.Channels, 0,
		float64(d.cfg.SampleRate), d.cfg.FramesPerBuffer,
		buffer,
	)
}

// readLoop blocks on the PortAudio stream and forwards copies of each filled
// buffer. It exits when the context is cancelled, the device is stopped, or
// a read fails; the frames channel is closed on the way out.
func (d *PortAudioDevice) readLoop(ctx context.Context, buffer []float32) {
	defer d.wg.Done()
	defer close(d.frames)

	for {
		if ctx.Err() != nil {
			return
		}

		d.mu.Lock()
		running := d.running
		stream := d.stream
		d.mu.Unlock()
		if !running || stream == nil {
			return
		}

		if err := stream.Read(); err != nil {
			d.mu.Lock()
			if d.running {
				d.err = fmt.Errorf("capture: stream read: %w", err)
			}
			d.mu.Unlock()
			return
		}

		batch := audio.FrameBatch{
			Samples:    append([]float32(nil), buffer...),
			SampleRate: d.cfg.SampleRate,
			Channels:   d.cfg.Channels,
			Timestamp:  time.Now(),
		}

		select {
		case d.frames <- batch:
		default:
			// Consumer is behind; dropping here keeps the callback path
			// non-blocking.
			d.mu.Lock()
			d.dropped++
			n := d.dropped
			d.mu.Unlock()
			if n%100 == 1 {
				slog.Warn("capture: dropping batches, consumer falling behind", "dropped", n)
			}
		}
	}
}

// Frames returns the captured batch channel.
func (d *PortAudioDevice) Frames() <-chan audio.FrameBatch { return d.frames }

// Err returns the terminal stream error, if any.
func (d *PortAudioDevice) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Dropped returns the number of batches discarded because the consumer fell
// behind.
func (d *PortAudioDevice) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Stop halts the read loop, closes the stream, and releases PortAudio.
func (d *PortAudioDevice) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	wasRunning := d.running
	d.running = false
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()

	if !wasRunning {
		return nil
	}

	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("capture: stop stream: %w", err))
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture: close stream: %w", err))
		}
	}

	d.wg.Wait()

	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("capture: terminate portaudio: %w", err))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// findInputDevice resolves a device by name, requiring input capability.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

// DeviceInfo describes one available audio input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListDevices enumerates the host's audio input devices. It initialises and
// terminates PortAudio around the enumeration, so it must not be called
// while a PortAudioDevice is active.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return out, nil
}
