// Package observe provides application-wide observability primitives for
// VoxSentry: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all VoxSentry metrics.
const meterName = "github.com/voxsentry/voxsentry"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SensorDuration tracks per-sensor Analyze latency. Use with attribute:
	//   attribute.String("sensor", ...)
	SensorDuration metric.Float64Histogram

	// RunDuration tracks the end-to-end latency of a full analysis run.
	RunDuration metric.Float64Histogram

	// --- Counters ---

	// Runs counts completed analysis runs. Use with attribute:
	//   attribute.String("verdict", ...)
	Runs metric.Int64Counter

	// SensorFailures counts sensor invocations recovered as indeterminate
	// (error, panic, or timeout). Use with attributes:
	//   attribute.String("sensor", ...), attribute.String("cause", ...)
	SensorFailures metric.Int64Counter

	// CalibrationCandidates counts fusion/decision replays evaluated during
	// offline calibration search.
	CalibrationCandidates metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of analysis runs currently in flight.
	ActiveRuns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for sensor and fusion latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SensorDuration, err = m.Float64Histogram("voxsentry.sensor.duration",
		metric.WithDescription("Latency of a single sensor Analyze call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("voxsentry.run.duration",
		metric.WithDescription("End-to-end latency of a full analysis run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Runs, err = m.Int64Counter("voxsentry.runs",
		metric.WithDescription("Total completed analysis runs by verdict."),
	); err != nil {
		return nil, err
	}
	if met.SensorFailures, err = m.Int64Counter("voxsentry.sensor.failures",
		metric.WithDescription("Total sensor invocations recovered as indeterminate, by sensor and cause."),
	); err != nil {
		return nil, err
	}
	if met.CalibrationCandidates, err = m.Int64Counter("voxsentry.calibration.candidates",
		metric.WithDescription("Total candidate configurations replayed during calibration search."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRuns, err = m.Int64UpDownCounter("voxsentry.active_runs",
		metric.WithDescription("Number of analysis runs currently in flight."),
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

// RecordRun records a completed analysis run with its verdict and duration.
func (m *Metrics) RecordRun(ctx context.Context, verdict string, seconds float64) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	m.RunDuration.Record(ctx, seconds)
}

// RecordSensor records one sensor invocation's latency.
func (m *Metrics) RecordSensor(ctx context.Context, sensorID string, seconds float64) {
	m.SensorDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("sensor", sensorID)),
	)
}

// RecordSensorFailure records a sensor invocation recovered as indeterminate.
func (m *Metrics) RecordSensorFailure(ctx context.Context, sensorID, cause string) {
	m.SensorFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sensor", sensorID),
			attribute.String("cause", cause),
		),
	)
}
