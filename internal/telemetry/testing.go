package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestTelemetry wraps a Telemetry backed by a manual reader so tests can
// collect recorded metrics in-process.
type TestTelemetry struct {
	*Telemetry
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry creates an enabled telemetry instance for tests.
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	cfg := NewDefaultConfig()
	cfg.Enabled = true

	reader := sdkmetric.NewManualReader()
	tel, err := New(cfg, WithReader(reader))
	if err != nil {
		t.Fatalf("creating test telemetry: %v", err)
	}
	t.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
	})

	return &TestTelemetry{Telemetry: tel, reader: reader}
}

// Collect returns everything recorded so far.
func (tt *TestTelemetry) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := tt.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}
	return rm
}

// FindMetric returns the named metric, or false when nothing was recorded
// under that name.
func (tt *TestTelemetry) FindMetric(t *testing.T, name string) (metricdata.Metrics, bool) {
	t.Helper()

	rm := tt.Collect(t)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}
