// Package observe provides application-wide observability primitives for the
// client: OpenTelemetry metrics, distributed tracing, and structured logging
// helpers.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "github.com/04116/avs-device-sdk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture pipeline ---

	// CaptureDuration tracks the wall-clock length of a capture session,
	// from accepted trigger to capture stop.
	CaptureDuration metric.Float64Histogram

	// RecognizeRequests counts recognize triggers. Use with attributes:
	//   attribute.String("initiator", ...), attribute.String("status", ...)
	RecognizeRequests metric.Int64Counter

	// EventsSent counts protocol events handed to the sender. Use with
	// attribute: attribute.String("event", ...)
	EventsSent metric.Int64Counter

	// ExpectSpeechTimeouts counts dialog continuations that expired without
	// a qualifying trigger.
	ExpectSpeechTimeouts metric.Int64Counter

	// --- Focus arbitration ---

	// FocusAcquisitions counts channel acquisitions. Use with attribute:
	//   attribute.String("channel", ...)
	FocusAcquisitions metric.Int64Counter

	// FocusPreemptions counts holders displaced by a new acquisition on the
	// same channel. Use with attribute: attribute.String("channel", ...)
	FocusPreemptions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live capture sessions (0 or 1 per
	// processor, summed across processors).
	ActiveSessions metric.Int64UpDownCounter
}

// captureBuckets defines histogram bucket boundaries (in seconds) sized for
// spoken-utterance capture lengths.
var captureBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("avsclient.capture.duration",
		metric.WithDescription("Wall-clock length of a capture session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizeRequests, err = m.Int64Counter("avsclient.recognize.requests",
		metric.WithDescription("Total recognize triggers by initiator and status."),
	); err != nil {
		return nil, err
	}
	if met.EventsSent, err = m.Int64Counter("avsclient.events.sent",
		metric.WithDescription("Total protocol events handed to the sender by event name."),
	); err != nil {
		return nil, err
	}
	if met.ExpectSpeechTimeouts, err = m.Int64Counter("avsclient.expect_speech.timeouts",
		metric.WithDescription("Total dialog continuations that expired without a trigger."),
	); err != nil {
		return nil, err
	}
	if met.FocusAcquisitions, err = m.Int64Counter("avsclient.focus.acquisitions",
		metric.WithDescription("Total focus channel acquisitions by channel."),
	); err != nil {
		return nil, err
	}
	if met.FocusPreemptions, err = m.Int64Counter("avsclient.focus.preemptions",
		metric.WithDescription("Total focus holders displaced by a new acquisition, by channel."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("avsclient.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
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

// RecordRecognize records one recognize trigger with the standard attribute
// set.
func (m *Metrics) RecordRecognize(ctx context.Context, initiator, status string) {
	m.RecognizeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("initiator", initiator),
			attribute.String("status", status),
		),
	)
}

// RecordEventSent records one protocol event handed to the sender.
func (m *Metrics) RecordEventSent(ctx context.Context, event string) {
	m.EventsSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)),
	)
}
