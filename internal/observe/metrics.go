// Package observe provides observability primitives for the alert pipeline:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// wires a Prometheus exporter so metrics remain scrapeable via the standard
// /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/strazhlabs/strazh"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// Hypotheses counts processed recognizer hypotheses. Use with attribute:
	//   attribute.String("kind", "partial"|"result"|"final")
	Hypotheses metric.Int64Counter

	// Alerts counts danger classifications that escalated to an alert.
	// Use with attribute: attribute.String("keyword", ...)
	Alerts metric.Int64Counter

	// AlertsSuppressed counts danger finals suppressed by the de-duplication
	// window.
	AlertsSuppressed metric.Int64Counter

	// Notifications counts dispatched notification outcomes. Use with
	// attribute: attribute.String("status", "ok"|"error"|"dropped")
	Notifications metric.Int64Counter

	// RecognizerErrors counts error events received from the recognizer.
	RecognizerErrors metric.Int64Counter

	// NotifyDuration tracks notification delivery latency.
	NotifyDuration metric.Float64Histogram

	// SpeakDuration tracks speech-synthesis invocation latency.
	SpeakDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// outbound HTTP calls on the alert path.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Hypotheses, err = m.Int64Counter("strazh.hypotheses",
		metric.WithDescription("Total processed recognizer hypotheses by kind."),
	); err != nil {
		return nil, err
	}
	if met.Alerts, err = m.Int64Counter("strazh.alerts",
		metric.WithDescription("Total danger alerts by matched keyword."),
	); err != nil {
		return nil, err
	}
	if met.AlertsSuppressed, err = m.Int64Counter("strazh.alerts.suppressed",
		metric.WithDescription("Total danger finals suppressed by de-duplication."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("strazh.notifications",
		metric.WithDescription("Total notification dispatch outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("strazh.recognizer.errors",
		metric.WithDescription("Total error events received from the recognizer."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.NotifyDuration, err = m.Float64Histogram("strazh.notify.duration",
		metric.WithDescription("Latency of notification delivery."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("strazh.speak.duration",
		metric.WithDescription("Latency of speech-synthesis invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("strazh.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
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

// RecordHypothesis increments the hypothesis counter for the given kind.
func (m *Metrics) RecordHypothesis(ctx context.Context, kind string) {
	m.Hypotheses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAlert increments the alert counter for the matched keyword.
func (m *Metrics) RecordAlert(ctx context.Context, keyword string) {
	m.Alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", keyword)))
}

// RecordNotification increments the notification counter with the given
// outcome status.
func (m *Metrics) RecordNotification(ctx context.Context, status string) {
	m.Notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
