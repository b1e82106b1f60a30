package segment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sotto-voice/sotto/internal/observe"
)

// QueueConfig holds the admission thresholds and backpressure tuning for a
// [Queue].
type QueueConfig struct {
	// Capacity is the maximum number of segments held for transcription.
	Capacity int

	// MinSamples and MinDuration are the admission thresholds. A segment
	// failing either one is discarded as noise, not an error.
	MinSamples  int
	MinDuration time.Duration

	// EnqueueTimeout bounds how long Offer waits on a full queue before
	// evicting the oldest queued segment.
	EnqueueTimeout time.Duration
}

// Queue is the bounded handoff between the segmenter and the inference
// dispatcher. Producers call Offer, the dispatcher consumes Out. When the
// queue is full, Offer waits up to the enqueue timeout and then evicts the
// oldest queued segment — the capture side is never blocked indefinitely by
// slow inference.
type Queue struct {
	cfg     QueueConfig
	ch      chan Segment
	metrics *observe.Metrics

	closeOnce sync.Once
}

// NewQueue returns a Queue with the given thresholds. Metrics may be nil in
// tests.
func NewQueue(cfg QueueConfig, metrics *observe.Metrics) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	return &Queue{
		cfg:     cfg,
		ch:      make(chan Segment, cfg.Capacity),
		metrics: metrics,
	}
}

// Offer validates seg and enqueues it for transcription. Segments below the
// admission thresholds are discarded silently (logged at debug level only).
// On a full queue, Offer waits up to the enqueue timeout, then drops the
// oldest queued segment to make room and records backpressure. Returns ctx's
// error if the context ends while waiting.
//
// Offer must not be called after Close.
func (q *Queue) Offer(ctx context.Context, seg Segment) error {
	if len(seg.Samples) < q.cfg.MinSamples || seg.Duration() < q.cfg.MinDuration {
		slog.Debug("segment below admission thresholds, discarding",
			"samples", len(seg.Samples),
			"duration", seg.Duration(),
			"min_samples", q.cfg.MinSamples,
			"min_duration", q.cfg.MinDuration,
		)
		if q.metrics != nil {
			q.metrics.RecordSegmentDrop(ctx, observe.DropTooShort)
		}
		return nil
	}

	select {
	case q.ch <- seg:
		q.addDepth(ctx, 1)
		return nil
	default:
	}

	// Queue full: bounded wait, then evict the oldest.
	timer := time.NewTimer(q.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case q.ch <- seg:
		q.addDepth(ctx, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	select {
	case old := <-q.ch:
		q.addDepth(ctx, -1)
		slog.Warn("inference queue full, dropping oldest segment",
			"dropped_duration", old.Duration(),
			"capacity", q.cfg.Capacity,
		)
		if q.metrics != nil {
			q.metrics.RecordSegmentDrop(ctx, observe.DropQueueFull)
		}
	default:
		// Consumer drained the queue while we waited.
	}

	select {
	case q.ch <- seg:
		q.addDepth(ctx, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Out returns the consumer side of the queue. The channel is closed by
// Close after the final segment of the session has been offered.
func (q *Queue) Out() <-chan Segment {
	return q.ch
}

// Depth returns the number of segments currently queued.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close marks the end of the segment stream. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
}

func (q *Queue) addDepth(ctx context.Context, delta int64) {
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, delta)
	}
}
