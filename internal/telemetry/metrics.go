package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fyrsmithlabs/agentloop"

// Metrics holds the engine's instruments. A nil *Metrics is safe to use;
// every record method is a no-op on nil.
type Metrics struct {
	iterations metric.Int64Counter
	attempts   metric.Int64Counter
	fallbacks  metric.Int64Counter
	tokens     metric.Int64Counter
	verdicts   metric.Int64Counter
	confidence metric.Float64Histogram
	saturation metric.Float64Gauge
	failures   metric.Int64Counter
}

// NewMetrics creates the instrument set on the given telemetry instance.
func NewMetrics(t *Telemetry) (*Metrics, error) {
	meter := t.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.iterations, err = meter.Int64Counter("agentloop.iterations",
		metric.WithDescription("Completed loop iterations"),
	); err != nil {
		return nil, fmt.Errorf("iterations counter: %w", err)
	}

	if m.attempts, err = meter.Int64Counter("agentloop.executor.attempts",
		metric.WithDescription("Executor attempts, including retries"),
	); err != nil {
		return nil, fmt.Errorf("attempts counter: %w", err)
	}

	if m.fallbacks, err = meter.Int64Counter("agentloop.fallbacks",
		metric.WithDescription("Fallback results substituted after retry exhaustion"),
	); err != nil {
		return nil, fmt.Errorf("fallbacks counter: %w", err)
	}

	if m.tokens, err = meter.Int64Counter("agentloop.tokens",
		metric.WithDescription("Tokens recorded against the saturation budget"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("tokens counter: %w", err)
	}

	if m.verdicts, err = meter.Int64Counter("agentloop.oracle.verdicts",
		metric.WithDescription("Oracle verdicts by completion outcome"),
	); err != nil {
		return nil, fmt.Errorf("verdicts counter: %w", err)
	}

	if m.confidence, err = meter.Float64Histogram("agentloop.oracle.confidence",
		metric.WithDescription("Oracle verdict confidence distribution"),
	); err != nil {
		return nil, fmt.Errorf("confidence histogram: %w", err)
	}

	if m.saturation, err = meter.Float64Gauge("agentloop.saturation.percent",
		metric.WithDescription("Current context saturation percentage"),
		metric.WithUnit("%"),
	); err != nil {
		return nil, fmt.Errorf("saturation gauge: %w", err)
	}

	if m.failures, err = meter.Int64Counter("agentloop.execution.failures",
		metric.WithDescription("Executions that failed after retries and fallback"),
	); err != nil {
		return nil, fmt.Errorf("failures counter: %w", err)
	}

	return m, nil
}

// RecordIteration counts one completed loop iteration.
func (m *Metrics) RecordIteration(ctx context.Context) {
	if m == nil {
		return
	}
	m.iterations.Add(ctx, 1)
}

// RecordAttempt counts an executor attempt. retry marks attempts after the
// first.
func (m *Metrics) RecordAttempt(ctx context.Context, retry bool) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retry", retry)))
}

// RecordFallback counts a substituted fallback result.
func (m *Metrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1)
}

// RecordTokens adds token usage under the given source.
func (m *Metrics) RecordTokens(ctx context.Context, count int, source string) {
	if m == nil || count <= 0 {
		return
	}
	m.tokens.Add(ctx, int64(count), metric.WithAttributes(attribute.String("source", source)))
}

// RecordVerdict counts an oracle verdict and its confidence.
func (m *Metrics) RecordVerdict(ctx context.Context, complete bool, confidence float64) {
	if m == nil {
		return
	}
	m.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("complete", complete)))
	m.confidence.Record(ctx, confidence)
}

// RecordSaturation sets the current saturation percentage for the level.
func (m *Metrics) RecordSaturation(ctx context.Context, percent float64, level string) {
	if m == nil {
		return
	}
	m.saturation.Record(ctx, percent, metric.WithAttributes(attribute.String("level", level)))
}

// RecordFailure counts a terminal execution failure.
func (m *Metrics) RecordFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1)
}
