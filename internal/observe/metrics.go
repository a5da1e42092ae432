// Package observe provides observability primitives for hushcut:
// OpenTelemetry metrics, tracing, trace-aware structured logging, and HTTP
// middleware for the diagnostics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to Prometheus so a running job can be scraped on /metrics.
// [DefaultMetrics] returns a package-level instance bound to the global
// provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hushcut metrics.
const meterName = "github.com/MrWong99/hushcut"

// Metrics holds all OpenTelemetry instruments of the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks the wall time of each pipeline stage. Use with
	// attributes: attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// OperationDuration tracks the wall time of a single external operation.
	// Use with attribute: attribute.String("kind", ...)
	OperationDuration metric.Float64Histogram

	// Operations counts executed operations. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	Operations metric.Int64Counter

	// Spans counts timeline spans. Use with attribute:
	//   attribute.Bool("speech", ...)
	Spans metric.Int64Counter

	// TimelineSeconds accumulates the source duration covered by speech and
	// non-speech spans. Use with attribute: attribute.Bool("speech", ...)
	TimelineSeconds metric.Float64Counter

	// SkippedSpans counts spans dropped under the skip-span failure policy.
	SkippedSpans metric.Int64Counter

	// ActiveRuns tracks the number of pipeline runs in progress.
	ActiveRuns metric.Int64UpDownCounter

	// HTTPRequestDuration tracks diagnostics HTTP latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets covers everything from sub-millisecond pure stages to
// multi-minute media operations (seconds).
var stageBuckets = []float64{
	0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1200,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("hushcut.stage.duration",
		metric.WithDescription("Duration of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OperationDuration, err = m.Float64Histogram("hushcut.operation.duration",
		metric.WithDescription("Duration of a single external media operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Operations, err = m.Int64Counter("hushcut.operations",
		metric.WithDescription("External media operations by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Spans, err = m.Int64Counter("hushcut.timeline.spans",
		metric.WithDescription("Normalized timeline spans by speech flag."),
	); err != nil {
		return nil, err
	}
	if met.TimelineSeconds, err = m.Float64Counter("hushcut.timeline.seconds",
		metric.WithDescription("Source seconds covered by speech and non-speech spans."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.SkippedSpans, err = m.Int64Counter("hushcut.spans.skipped",
		metric.WithDescription("Spans omitted from the output after a failed operation."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRuns, err = m.Int64UpDownCounter("hushcut.active_runs",
		metric.WithDescription("Number of pipeline runs in progress."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hushcut.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails.
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

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// status maps an error to the "status" attribute value.
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records the duration and outcome of a pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status(err)),
		),
	)
}

// RecordOperation records one executed external operation.
func (m *Metrics) RecordOperation(ctx context.Context, kind string, d time.Duration, err error) {
	m.OperationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)),
	)
	m.Operations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status(err)),
		),
	)
}

// RecordSpan records one timeline span covering seconds of source media.
func (m *Metrics) RecordSpan(ctx context.Context, speech bool, seconds float64) {
	attrs := metric.WithAttributes(attribute.Bool("speech", speech))
	m.Spans.Add(ctx, 1, attrs)
	m.TimelineSeconds.Add(ctx, seconds, attrs)
}
