// Package observe provides application-wide observability primitives for
// sotto: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sotto metrics.
const meterName = "github.com/sotto-voice/sotto"

// Drop reasons recorded on [Metrics.SegmentsDropped].
const (
	DropTooShort    = "too_short"
	DropQueueFull   = "queue_full"
	DropEngineError = "engine_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks wall-clock inference latency per segment.
	TranscriptionDuration metric.Float64Histogram

	// SegmentDuration tracks the audio duration of completed speech segments.
	SegmentDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsCompleted counts segments that finished transcription. Use
	// with attribute: attribute.String("status", "ok"|"error").
	SegmentsCompleted metric.Int64Counter

	// SegmentsDropped counts segments discarded before or during
	// transcription. Use with attribute:
	//   attribute.String("reason", DropTooShort|DropQueueFull|DropEngineError)
	SegmentsDropped metric.Int64Counter

	// TriggerMatches counts transcripts promoted to command events.
	TriggerMatches metric.Int64Counter

	// CaptureOverruns counts audio batches dropped because the capture
	// consumer fell behind the device.
	CaptureOverruns metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of segments waiting for transcription.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for local speech-inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// segmentBuckets defines histogram bucket boundaries (in seconds) for speech
// segment durations. Dictation utterances rarely exceed half a minute.
var segmentBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 21, 34,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("sotto.transcription.duration",
		metric.WithDescription("Wall-clock latency of speech-to-text inference per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("sotto.segment.duration",
		metric.WithDescription("Audio duration of completed speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsCompleted, err = m.Int64Counter("sotto.segments.completed",
		metric.WithDescription("Total segments that finished transcription, by status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("sotto.segments.dropped",
		metric.WithDescription("Total segments discarded, by reason."),
	); err != nil {
		return nil, err
	}
	if met.TriggerMatches, err = m.Int64Counter("sotto.trigger.matches",
		metric.WithDescription("Total transcripts promoted to command events."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverruns, err = m.Int64Counter("sotto.capture.overruns",
		metric.WithDescription("Total audio batches dropped by a lagging capture consumer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("sotto.queue.depth",
		metric.WithDescription("Number of segments waiting for transcription."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sotto.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscription records one finished inference: its wall-clock latency
// and a completion counter increment with the given status.
func (m *Metrics) RecordTranscription(ctx context.Context, elapsed time.Duration, status string) {
	m.TranscriptionDuration.Record(ctx, elapsed.Seconds())
	m.SegmentsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSegmentDrop records a discarded segment with the given reason.
func (m *Metrics) RecordSegmentDrop(ctx context.Context, reason string) {
	m.SegmentsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordTriggerMatch records a transcript promoted to a command event.
func (m *Metrics) RecordTriggerMatch(ctx context.Context) {
	m.TriggerMatches.Add(ctx, 1)
}
