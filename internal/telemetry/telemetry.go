// Package telemetry provides OpenTelemetry metric instrumentation for the
// execution engine. Telemetry failures never crash the engine; instruments
// degrade to no-ops.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Telemetry manages the MeterProvider and graceful shutdown.
type Telemetry struct {
	config *Config

	meterProvider *sdkmetric.MeterProvider

	healthy atomic.Bool
}

// Option configures Telemetry creation.
type Option func(*options)

type options struct {
	readers []sdkmetric.Reader
}

// WithReader attaches a metric reader. Tests pass a manual reader to collect
// recorded metrics in-process.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// New creates a Telemetry instance. When disabled, Meter returns no-op
// instruments and Shutdown is a no-op.
func New(cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	t.healthy.Store(true)

	if !cfg.Enabled {
		return t, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range o.readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}

	t.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	return t, nil
}

// Meter returns a meter for the given instrumentation scope. Returns a
// no-op meter when telemetry is disabled.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes pending metrics and releases the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	t.healthy.Store(false)
	return t.meterProvider.Shutdown(ctx)
}

// ForceFlush immediately exports all pending metric data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	return t.meterProvider.ForceFlush(ctx)
}

// IsEnabled returns true when telemetry is enabled and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load()
}
