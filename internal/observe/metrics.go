// Package observe provides application-wide observability primitives for
// Aria: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Aria metrics.
const meterName = "github.com/MrWong99/aria"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Live voice sessions ---

	// ActiveSessions tracks the number of open live sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks how long live sessions stay open. Use with
	// attribute.String("reason", ...).
	SessionDuration metric.Float64Histogram

	// FramesSent counts microphone frames uploaded to the remote session.
	FramesSent metric.Int64Counter

	// FramesDropped counts microphone frames discarded because the pending
	// queue was full.
	FramesDropped metric.Int64Counter

	// ChunksScheduled counts inbound audio chunks placed on the playback
	// timeline.
	ChunksScheduled metric.Int64Counter

	// CodecErrors counts inbound audio chunks dropped as malformed.
	CodecErrors metric.Int64Counter

	// --- Content calls (insights, chat, images) ---

	// ContentRequests counts content provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...), attribute.String("status", ...)
	ContentRequests metric.Int64Counter

	// ContentDuration tracks content provider latency. Use with attributes
	// provider and op.
	ContentDuration metric.Float64Histogram

	// Degradations counts responses replaced by a default payload. Use with
	// attribute.String("op", ...).
	Degradations metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// remote model calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for live
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("aria.live.sessions.active",
		metric.WithDescription("Number of open live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("aria.live.session.duration",
		metric.WithDescription("Lifetime of live voice sessions by close reason."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("aria.live.frames.sent",
		metric.WithDescription("Microphone frames uploaded to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("aria.live.frames.dropped",
		metric.WithDescription("Microphone frames dropped by the pending queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("aria.live.chunks.scheduled",
		metric.WithDescription("Inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.CodecErrors, err = m.Int64Counter("aria.live.codec.errors",
		metric.WithDescription("Inbound audio chunks dropped as malformed."),
	); err != nil {
		return nil, err
	}

	if met.ContentRequests, err = m.Int64Counter("aria.content.requests",
		metric.WithDescription("Content provider requests by provider, op, and status."),
	); err != nil {
		return nil, err
	}
	if met.ContentDuration, err = m.Float64Histogram("aria.content.duration",
		metric.WithDescription("Latency of content provider requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Degradations, err = m.Int64Counter("aria.content.degradations",
		metric.WithDescription("Responses replaced by a default payload, by op."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("aria.http.request.duration",
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

// RecordSessionOpened increments the active session gauge.
func (m *Metrics) RecordSessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionClosed decrements the active session gauge and records the
// session lifetime.
func (m *Metrics) RecordSessionClosed(ctx context.Context, lifetime time.Duration, reason string) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionDuration.Record(ctx, lifetime.Seconds(),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordContentRequest records one content provider call with its latency.
func (m *Metrics) RecordContentRequest(ctx context.Context, provider, op, status string, took time.Duration) {
	m.ContentRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	m.ContentDuration.Record(ctx, took.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
		),
	)
}

// RecordDegradation records a response replaced by its default payload.
func (m *Metrics) RecordDegradation(ctx context.Context, op string) {
	m.Degradations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
