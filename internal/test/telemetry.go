package test

import (
	"testing"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/spruce"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// NewTelemetryProvider returns a new telemetry provider for use in tests. Log
// messages are written to the test's log.
func NewTelemetryProvider(t testing.TB) *telemetry.Provider {
	t.Helper()

	return &telemetry.Provider{
		TracerProvider: nooptrace.NewTracerProvider(),
		MeterProvider:  noopmetric.NewMeterProvider(),
		Logger:         spruce.NewTestLogger(t),
	}
}
