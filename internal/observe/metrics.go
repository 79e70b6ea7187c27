// Package observe provides observability primitives for frontdesk:
// OpenTelemetry metrics with a Prometheus exporter bridge, and HTTP
// middleware recording request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
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

// meterName is the instrumentation scope name for all frontdesk metrics.
const meterName = "github.com/relayline/frontdesk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// TurnDuration tracks whole-turn processing latency. Use with
	// attribute.String("match_source", ...).
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TriggerWins counts trigger-card wins. Use with
	// attribute.String("card_id", ...).
	TriggerWins metric.Int64Counter

	// AssistCalls counts LLM assist invocations by mode and acceptance.
	AssistCalls metric.Int64Counter

	// SpeakBlocks counts speak-gate and echo-guard blocks by kind.
	SpeakBlocks metric.Int64Counter

	// ActiveCalls tracks the number of calls with live state.
	ActiveCalls metric.Int64Gauge

	// HTTPRequestDuration tracks HTTP request processing time by method
	// and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for dialog-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("frontdesk.turn.duration",
		metric.WithDescription("Whole-turn processing latency by match source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("frontdesk.llm.duration",
		metric.WithDescription("LLM completion latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TriggerWins, err = m.Int64Counter("frontdesk.trigger.wins",
		metric.WithDescription("Trigger-card wins by card ID."),
	); err != nil {
		return nil, err
	}
	if met.AssistCalls, err = m.Int64Counter("frontdesk.assist.calls",
		metric.WithDescription("LLM assist invocations by mode and acceptance."),
	); err != nil {
		return nil, err
	}
	if met.SpeakBlocks, err = m.Int64Counter("frontdesk.speak.blocks",
		metric.WithDescription("Speak-gate and echo-guard blocks by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64Gauge("frontdesk.active_calls",
		metric.WithDescription("Number of calls with live state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("frontdesk.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Panics if instrument
// creation fails (should not happen with the global provider).
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

// ObserveTurn records one turn's latency.
func (m *Metrics) ObserveTurn(ctx context.Context, matchSource string, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("match_source", matchSource)))
}

// ObserveLLM records one completion's latency.
func (m *Metrics) ObserveLLM(ctx context.Context, model string, d time.Duration) {
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("model", model)))
}

// CountTriggerWin records one trigger-card win.
func (m *Metrics) CountTriggerWin(ctx context.Context, cardID string) {
	m.TriggerWins.Add(ctx, 1,
		metric.WithAttributes(attribute.String("card_id", cardID)))
}

// CountAssist records one assist invocation.
func (m *Metrics) CountAssist(ctx context.Context, mode string, accepted bool) {
	m.AssistCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.Bool("accepted", accepted),
		))
}

// CountSpeakBlock records one blocked spoken candidate.
func (m *Metrics) CountSpeakBlock(ctx context.Context, kind string) {
	m.SpeakBlocks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// SetActiveCalls records the current live-call count.
func (m *Metrics) SetActiveCalls(n int64) {
	m.ActiveCalls.Record(context.Background(), n)
}
