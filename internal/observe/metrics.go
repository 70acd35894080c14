// Package observe provides application-wide observability primitives for
// voxclient: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from the status server's /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voxclient metrics.
const meterName = "github.com/MrWong99/voxclient"

// Frame direction attribute values.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Framing ---

	// Frames counts frames on the wire. Use with attributes:
	//   attribute.String("direction", ...), attribute.String("kind", "data"|"sentinel")
	Frames metric.Int64Counter

	// PayloadBytes counts PCM payload bytes. Use with attribute:
	//   attribute.String("direction", ...)
	PayloadBytes metric.Int64Counter

	// --- Session ---

	// StateTransitions counts state machine transitions. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...), attribute.String("event", ...)
	StateTransitions metric.Int64Counter

	// WakeConfirmations counts wake probes confirmed by the server.
	WakeConfirmations metric.Int64Counter

	// AckTimeouts counts uploads whose acknowledgment never arrived.
	AckTimeouts metric.Int64Counter

	// RecordingDuration tracks how long each recording lasted. Use with
	// attribute: attribute.String("reason", "silence"|"max_duration")
	RecordingDuration metric.Float64Histogram

	// PlaybackDuration tracks how long each playback lasted.
	PlaybackDuration metric.Float64Histogram

	// --- Connection ---

	// ConnectAttempts counts dial attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ConnectAttempts metric.Int64Counter

	// Reconnects counts forced reconnects. Use with attribute:
	//   attribute.String("reason", ...)
	Reconnects metric.Int64Counter

	// LinkResets counts forced link re-associations after repeated dial
	// failures.
	LinkResets metric.Int64Counter

	// Connected is 1 while a transport is established, 0 otherwise.
	Connected metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// utterances and replies.
var durationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Frames, err = m.Int64Counter("voxclient.frames",
		metric.WithDescription("Frames on the wire by direction and kind."),
	); err != nil {
		return nil, err
	}
	if met.PayloadBytes, err = m.Int64Counter("voxclient.payload.bytes",
		metric.WithDescription("PCM payload bytes by direction."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("voxclient.session.transitions",
		metric.WithDescription("Session state transitions by from, to, and event."),
	); err != nil {
		return nil, err
	}
	if met.WakeConfirmations, err = m.Int64Counter("voxclient.session.wake_confirmations",
		metric.WithDescription("Wake probes confirmed by the server."),
	); err != nil {
		return nil, err
	}
	if met.AckTimeouts, err = m.Int64Counter("voxclient.session.ack_timeouts",
		metric.WithDescription("Uploads whose acknowledgment did not arrive in time."),
	); err != nil {
		return nil, err
	}
	if met.ConnectAttempts, err = m.Int64Counter("voxclient.conn.attempts",
		metric.WithDescription("Dial attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxclient.conn.reconnects",
		metric.WithDescription("Forced reconnects by reason."),
	); err != nil {
		return nil, err
	}
	if met.LinkResets, err = m.Int64Counter("voxclient.link.resets",
		metric.WithDescription("Link re-associations forced by repeated dial failures."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("voxclient.session.recording.duration",
		metric.WithDescription("Duration of each recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxclient.session.playback.duration",
		metric.WithDescription("Duration of each playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Connected, err = m.Int64UpDownCounter("voxclient.conn.connected",
		metric.WithDescription("1 while the server transport is established."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxclient.http.request.duration",
		metric.WithDescription("Status server request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordFrames records n frames of the given kind ("data" or "sentinel")
// carrying payload bytes in direction.
func (m *Metrics) RecordFrames(ctx context.Context, direction, kind string, n, payload int) {
	if n > 0 {
		m.Frames.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("kind", kind),
		))
	}
	if payload > 0 {
		m.PayloadBytes.Add(ctx, int64(payload), metric.WithAttributes(
			attribute.String("direction", direction),
		))
	}
}

// RecordTransition records one state machine transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to, event string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("event", event),
	))
}

// RecordConnectAttempt records one dial attempt.
func (m *Metrics) RecordConnectAttempt(ctx context.Context, status string) {
	m.ConnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordReconnect records one forced reconnect.
func (m *Metrics) RecordReconnect(ctx context.Context, reason string) {
	m.Reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRecording records the duration of a finished recording.
func (m *Metrics) RecordRecording(ctx context.Context, d time.Duration, reason string) {
	m.RecordingDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
}
