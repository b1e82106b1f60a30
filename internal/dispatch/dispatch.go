// Package dispatch owns the transcription engine and serialises all access
// to it.
//
// The dispatcher runs a single worker goroutine that consumes closed
// segments from the queue and transcribes them one at a time, strictly in
// arrival order. Results therefore come out in the order the segments'
// speech ended, regardless of how long any individual inference takes. The
// engine is resource-heavy and not reentrant; nothing else in the process
// may call it.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sotto-voice/sotto/internal/observe"
	"github.com/sotto-voice/sotto/internal/segment"
	"github.com/sotto-voice/sotto/pkg/provider/stt"
)

// Outcome is the terminal fate of one admitted segment: either a
// transcription result or the error that made the engine drop it.
type Outcome struct {
	// Result is valid when Err is nil.
	Result stt.Result

	// Err is the engine failure for this segment. A failed segment is
	// dropped; the worker continues with the next one.
	Err error

	// SegmentDuration is the audio duration of the segment.
	SegmentDuration time.Duration
}

// Config holds the fixed transcription parameters for a session.
type Config struct {
	// SampleRate is the engine's input rate in Hz.
	SampleRate int

	// Language is the BCP-47 language code passed to the engine.
	Language string
}

// Dispatcher transcribes queued segments with exclusive ownership of an
// [stt.Engine].
type Dispatcher struct {
	engine  stt.Engine
	queue   *segment.Queue
	cfg     Config
	metrics *observe.Metrics
	results chan Outcome
}

// New returns a Dispatcher reading from queue. Metrics may be nil in tests.
func New(engine stt.Engine, queue *segment.Queue, cfg Config, metrics *observe.Metrics) *Dispatcher {
	return &Dispatcher{
		engine:  engine,
		queue:   queue,
		cfg:     cfg,
		metrics: metrics,
		results: make(chan Outcome),
	}
}

// Results returns the outcome stream. It is closed by Run after the queue
// closes and the final in-flight inference finishes, which is the drain
// signal stop() waits on.
func (d *Dispatcher) Results() <-chan Outcome {
	return d.results
}

// Run consumes the queue until it is closed, transcribing one segment at a
// time. Engine failures drop the affected segment and are reported as error
// outcomes; they never stop the worker. Run returns once the queue is
// exhausted or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.results)

	for seg := range d.queue.Out() {
		if d.metrics != nil {
			d.metrics.QueueDepth.Add(ctx, -1)
			d.metrics.SegmentDuration.Record(ctx, seg.Duration().Seconds())
		}

		out := d.transcribe(ctx, seg)

		select {
		case d.results <- out:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) transcribe(ctx context.Context, seg segment.Segment) Outcome {
	start := time.Now()
	res, err := d.engine.Transcribe(ctx, seg.Samples, d.cfg.SampleRate, d.cfg.Language)
	elapsed := time.Since(start)

	if err != nil {
		slog.Error("transcription failed, dropping segment",
			"err", err,
			"segment_duration", seg.Duration(),
			"inference_duration", elapsed,
		)
		if d.metrics != nil {
			d.metrics.RecordTranscription(ctx, elapsed, "error")
			d.metrics.RecordSegmentDrop(ctx, observe.DropEngineError)
		}
		return Outcome{Err: err, SegmentDuration: seg.Duration()}
	}

	slog.Debug("segment transcribed",
		"text_len", len(res.Text),
		"confidence", res.Confidence,
		"segment_duration", seg.Duration(),
		"inference_duration", elapsed,
	)
	if d.metrics != nil {
		d.metrics.RecordTranscription(ctx, elapsed, "ok")
	}
	return Outcome{Result: res, SegmentDuration: seg.Duration()}
}
