package engineconfig

import (
	"log/slog"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// finalizeTelemetry fills in any telemetry providers that were not set
// explicitly. The global OpenTelemetry providers are used only when the
// engine is configured from the environment, otherwise no-op providers are
// used.
func (c *Config) finalizeTelemetry() {
	c.Telemetry.TracerProvider = orDefault(
		c.Telemetry.TracerProvider,
		c.UseEnv,
		otel.GetTracerProvider,
		func() trace.TracerProvider { return nooptrace.NewTracerProvider() },
	)

	c.Telemetry.MeterProvider = orDefault(
		c.Telemetry.MeterProvider,
		c.UseEnv,
		otel.GetMeterProvider,
		func() metric.MeterProvider { return noopmetric.NewMeterProvider() },
	)

	if c.Telemetry.Logger == nil {
		c.Telemetry.Logger = slog.Default()
	}

	c.Telemetry.Attrs = append(
		c.Telemetry.Attrs,
		telemetry.String("node_id", c.NodeID.String()),
	)
}

func orDefault[T comparable](
	v T,
	useGlobal bool,
	global, noop func() T,
) T {
	var zero T

	switch {
	case v != zero:
		return v
	case useGlobal:
		return global()
	default:
		return noop()
	}
}
