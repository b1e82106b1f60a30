// Package pipeline wires capture, resampling, segmentation, transcription,
// and trigger detection into one controllable unit.
//
// The Controller owns the session lifecycle: Start acquires the audio device
// and spins up the worker tree, Stop drains in-flight work and releases it.
// State transitions are serialized by a single mutex; at any moment the
// pipeline is either Idle or Recording, never in between from a caller's
// point of view.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sotto-voice/sotto/internal/command"
	"github.com/sotto-voice/sotto/internal/config"
	"github.com/sotto-voice/sotto/internal/dispatch"
	"github.com/sotto-voice/sotto/internal/observe"
	"github.com/sotto-voice/sotto/internal/segment"
	"github.com/sotto-voice/sotto/pkg/audio/capture"
	"github.com/sotto-voice/sotto/pkg/audio/resample"
	"github.com/sotto-voice/sotto/pkg/audio/wavsink"
	"github.com/sotto-voice/sotto/pkg/provider/stt"
	"github.com/sotto-voice/sotto/pkg/provider/vad"
)

var (
	// ErrAlreadyRecording is returned by Start when a session is active.
	ErrAlreadyRecording = errors.New("pipeline: already recording")

	// ErrNotRecording is returned by Stop when no session is active.
	ErrNotRecording = errors.New("pipeline: not recording")
)

// DeviceFactory constructs a fresh capture device. Devices are
// single-session, so the controller requests a new one per Start.
type DeviceFactory func() (capture.Device, error)

// Controller runs the capture-to-event pipeline.
type Controller struct {
	cfg       *config.Config
	newDevice DeviceFactory
	vadEngine vad.Engine
	engine    stt.Engine
	sink      Sink
	metrics   *observe.Metrics
	detector  command.Detector

	// cmdMu guards the hot-reloadable command policy.
	cmdMu    sync.RWMutex
	commands config.CommandsConfig

	// mu serializes all state transitions.
	mu    sync.Mutex
	state State
	sess  *session
}

// session is the per-recording worker tree and its resources.
type session struct {
	device     capture.Device
	vadSession vad.SessionHandle
	writer     *wavsink.Writer
	cancel     context.CancelFunc

	// done closes once every worker has exited.
	done chan struct{}
}

// New returns an Idle controller. The transcription engine is owned
// exclusively by the controller's dispatcher from here on; metrics may be
// nil in tests.
func New(cfg *config.Config, newDevice DeviceFactory, vadEngine vad.Engine, engine stt.Engine, sink Sink, metrics *observe.Metrics) *Controller {
	return &Controller{
		cfg:       cfg,
		newDevice: newDevice,
		vadEngine: vadEngine,
		engine:    engine,
		sink:      sink,
		metrics:   metrics,
		detector:  command.New(),
		commands:  cfg.Commands,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetCommandPolicy replaces the trigger phrase and confidence floor applied
// to future transcripts. Safe to call while recording.
func (c *Controller) SetCommandPolicy(cmds config.CommandsConfig) {
	c.cmdMu.Lock()
	c.commands = cmds
	c.cmdMu.Unlock()
}

func (c *Controller) commandPolicy() config.CommandsConfig {
	c.cmdMu.RLock()
	defer c.cmdMu.RUnlock()
	return c.commands
}

// Start opens the audio device and begins a recording session. It fails
// with ErrAlreadyRecording when a session is active, and with
// capture.ErrDeviceUnavailable (wrapped) when no input device can be opened.
// A VAD backend that cannot classify frames in real time is rejected here,
// before any audio flows.
//
// The session is not bound to ctx: once Start returns, recording runs until
// Stop is called or the device fails, regardless of what happens to the
// context that carried the start request.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording {
		return ErrAlreadyRecording
	}

	rate := c.cfg.Audio.Transcription.WhisperSampleRate
	frameSize := c.cfg.VAD.FrameSamples(rate)

	vadSess, err := c.vadEngine.NewSession(vad.Config{
		SampleRate: rate,
		FrameSize:  frameSize,
		Threshold:  c.cfg.VAD.ActivationThreshold,
	})
	if err != nil {
		return fmt.Errorf("pipeline: create vad session: %w", err)
	}

	segCfg := segment.Config{
		SampleRate: rate,
		FrameSize:  frameSize,
		Preroll:    c.cfg.VAD.Preroll(),
		Hangover:   c.cfg.VAD.Hangover(),
	}
	if err := segment.Calibrate(vadSess, segCfg); err != nil {
		vadSess.Close()
		return err
	}
	segmenter, err := segment.New(vadSess, segCfg)
	if err != nil {
		vadSess.Close()
		return err
	}

	resampler, err := resample.New(rate)
	if err != nil {
		vadSess.Close()
		return err
	}

	// The session outlives the Start call, so everything session-scoped —
	// the device's read loop included — runs under a context detached from
	// the caller's. Binding the device to the request context would end the
	// stream the moment the HTTP handler returns.
	sessCtx, cancel := context.WithCancel(context.Background())

	device, err := c.newDevice()
	if err != nil {
		cancel()
		vadSess.Close()
		return fmt.Errorf("pipeline: create capture device: %w", err)
	}
	if err := device.Start(sessCtx); err != nil {
		cancel()
		vadSess.Close()
		return fmt.Errorf("pipeline: start capture: %w", err)
	}

	var writer *wavsink.Writer
	if rec := c.cfg.Audio.Recording; rec.SaveToFile {
		// The recording carries the post-resample pipeline audio, so its
		// rate is the transcription rate regardless of the configured one.
		writer, err = wavsink.Create(wavsink.Config{
			Path:          rec.OutputPath,
			SampleRate:    rate,
			BitsPerSample: rec.OutputBitsPerSample,
			Channels:      rec.OutputChannels,
		})
		if err != nil {
			cancel()
			device.Stop()
			vadSess.Close()
			return fmt.Errorf("pipeline: open recording file: %w", err)
		}
	}

	tr := c.cfg.Audio.Transcription
	perf := c.cfg.Audio.Performance
	queue := segment.NewQueue(segment.QueueConfig{
		Capacity:       perf.ChannelBufferSize,
		MinSamples:     tr.MinTranscriptionSamples,
		MinDuration:    tr.MinDuration(),
		EnqueueTimeout: perf.EnqueueTimeout(),
	}, c.metrics)
	disp := dispatch.New(c.engine, queue, dispatch.Config{
		SampleRate: rate,
		Language:   tr.Language,
	}, c.metrics)

	sess := &session{
		device:     device,
		vadSession: vadSess,
		writer:     writer,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error {
		return c.captureLoop(gctx, device, resampler, segmenter, queue, writer)
	})
	g.Go(func() error {
		disp.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.resultsLoop(gctx, disp)
		return nil
	})
	go c.supervise(sess, g)

	c.sess = sess
	c.state = StateRecording
	c.publish(Event{Kind: EventState, State: StateRecording})
	slog.Info("recording started",
		"sample_rate", rate,
		"vad_engine", c.cfg.VAD.Engine,
		"save_to_file", writer != nil,
	)
	return nil
}

// Stop ends the recording session. The open segment, if any, is flushed
// through the same admission validation as a naturally closed one, and
// in-flight transcription is drained up to the configured drain timeout
// before the device is released and the controller reports Idle.
//
// When the drain timeout fires, the session is cancelled and Stop still
// waits for the worker tree to unwind. Cancellation stops the workers
// between inferences, not inside one: an engine call that is already
// running goes to completion (whisper.cpp does not interrupt inference),
// so the wait past the timeout is bounded by a single inference.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return ErrNotRecording
	}
	sess := c.sess

	// Closing the device ends the frame stream; the capture loop flushes
	// the open segment and closes the queue, and the dispatcher drains.
	if err := sess.device.Stop(); err != nil {
		slog.Warn("device stop failed", "err", err)
	}

	drain := time.NewTimer(c.cfg.Audio.Performance.DrainTimeout())
	defer drain.Stop()
	select {
	case <-sess.done:
	case <-drain.C:
		slog.Warn("drain timeout exceeded, abandoning in-flight transcription",
			"timeout", c.cfg.Audio.Performance.DrainTimeout())
		sess.cancel()
		<-sess.done
	case <-ctx.Done():
		sess.cancel()
		<-sess.done
	}

	c.finalizeLocked(sess)
	return nil
}

// captureLoop moves audio from the device into the segmenter until the
// frame stream ends, then flushes and closes the queue. Returns the
// device's terminal error, if any.
func (c *Controller) captureLoop(ctx context.Context, device capture.Device, resampler *resample.Resampler, segmenter *segment.Segmenter, queue *segment.Queue, writer *wavsink.Writer) error {
	defer queue.Close()

	for batch := range device.Frames() {
		samples, err := resampler.Process(batch)
		if err != nil {
			slog.Warn("dropping malformed batch", "err", err)
			continue
		}
		if writer != nil {
			if err := writer.Write(samples); err != nil {
				slog.Warn("session recording failed, disabling", "err", err)
				writer = nil
			}
		}
		segs, err := segmenter.Push(samples)
		if err != nil {
			slog.Warn("vad classification failed, dropping audio", "err", err)
			continue
		}
		for _, seg := range segs {
			if err := queue.Offer(ctx, seg); err != nil {
				return err
			}
		}
	}

	// Stream ended: force-close the open segment so stop() does not lose
	// trailing speech. It passes through the same admission validation.
	if seg := segmenter.Flush(); seg != nil {
		if err := queue.Offer(ctx, *seg); err != nil {
			return err
		}
	}

	if d, ok := device.(interface{ Dropped() uint64 }); ok && c.metrics != nil {
		if n := d.Dropped(); n > 0 {
			c.metrics.CaptureOverruns.Add(ctx, int64(n))
		}
	}
	return device.Err()
}

// resultsLoop publishes outcomes in completion order and runs trigger
// detection on each transcript.
func (c *Controller) resultsLoop(ctx context.Context, disp *dispatch.Dispatcher) {
	for out := range disp.Results() {
		if out.Err != nil {
			c.publish(Event{Kind: EventError, Error: out.Err.Error()})
			continue
		}
		res := out.Result
		c.publish(Event{
			Kind:       EventTranscript,
			Text:       res.Text,
			Confidence: res.Confidence,
		})

		cmds := c.commandPolicy()
		if m := c.detector.Detect(res, cmds.TriggerWord, cmds.MinConfidence); m.Matched {
			if c.metrics != nil {
				c.metrics.RecordTriggerMatch(ctx)
			}
			c.publish(Event{
				Kind:       EventCommand,
				Text:       res.Text,
				Matched:    true,
				Confidence: m.Confidence,
			})
		}
	}
}

// supervise waits for the worker tree and finalizes the session once it is
// over, however it ended: a device failure is reported as an error event
// first, and a stream that ended on its own (device unplugged, driver gave
// up) still returns the controller to Idle instead of leaving a dead
// session reported as recording. When Stop initiated the shutdown it wins
// the race — it holds the lock until it has finalized — and supervise sees
// the session already cleared.
func (c *Controller) supervise(sess *session, g *errgroup.Group) {
	err := g.Wait()

	// Closing done before taking the lock lets a Stop that is waiting on
	// the drain proceed; it finalizes first and supervise backs off below.
	close(sess.done)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("capture session failed", "err", err)
		c.publish(Event{Kind: EventError, Error: err.Error()})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != sess {
		// Stop already finalized this session.
		return
	}
	c.finalizeLocked(sess)
}

// finalizeLocked releases all session resources and transitions to Idle.
// Caller holds c.mu; all workers have exited.
func (c *Controller) finalizeLocked(sess *session) {
	sess.cancel()
	sess.device.Stop()
	if sess.writer != nil {
		if err := sess.writer.Close(); err != nil {
			slog.Warn("finalizing session recording failed", "err", err)
		} else {
			slog.Info("session recording saved", "path", sess.writer.Path())
		}
	}
	if err := sess.vadSession.Close(); err != nil {
		slog.Warn("closing vad session failed", "err", err)
	}

	c.sess = nil
	c.state = StateIdle
	c.publish(Event{Kind: EventState, State: StateIdle})
	slog.Info("recording stopped")
}

func (c *Controller) publish(e Event) {
	e.Timestamp = time.Now()
	if c.sink != nil {
		c.sink.Publish(e)
	}
}
