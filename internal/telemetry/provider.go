package telemetry

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Provider provides Recorder instances scoped to particular subsystems.
//
// The zero value of a *Provider is equivalent to a provider configured with
// no-op tracer and meter providers and the default slog logger.
type Provider struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         *slog.Logger
	Attrs          []Attr
}

// Recorder records traces, metrics and logs for a particular subsystem.
type Recorder struct {
	name    string
	tracer  trace.Tracer
	meter   metric.Meter
	logger  *slog.Logger
	attrKVs attribute.Set

	errorCount              Instrument[int64]
	operationCount          Instrument[int64]
	operationsInFlightCount Instrument[int64]
}

const modulePath = "github.com/dogmatiq/ledger"

// moduleVersion returns the version of this module as recorded in the
// binary's build information.
var moduleVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Main.Path == modulePath {
		return info.Main.Version
	}

	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}

	return "unknown"
})

// Recorder returns a new Recorder instance for the named subsystem.
func (p *Provider) Recorder(name string, attrs ...Attr) *Recorder {
	version := moduleVersion()

	var (
		tracerProvider trace.TracerProvider
		meterProvider  metric.MeterProvider
		logger         *slog.Logger
	)

	if p != nil {
		tracerProvider = p.TracerProvider
		meterProvider = p.MeterProvider
		logger = p.Logger

		attrs = append(
			slices.Clone(p.Attrs),
			attrs...,
		)
	}

	if tracerProvider == nil {
		tracerProvider = nooptrace.NewTracerProvider()
	}

	if meterProvider == nil {
		meterProvider = noopmetric.NewMeterProvider()
	}

	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		name: name,
		tracer: tracerProvider.Tracer(
			modulePath+"/"+name,
			trace.WithInstrumentationVersion(version),
		),
		meter: meterProvider.Meter(
			modulePath+"/"+name,
			metric.WithInstrumentationVersion(version),
		),
		logger: logger.With(
			append(
				[]any{slog.String("subsystem", name)},
				asSlogAttrs(attrs)...,
			)...,
		),
		attrKVs: attribute.NewSet(asAttrKeyValues(attrs)...),
	}

	r.errorCount = r.Counter("errors", "{error}", "The number of errors that have occurred.")
	r.operationCount = r.Counter("operations", "{operation}", "The number of operations that have been performed.")
	r.operationsInFlightCount = r.UpDownCounter("operations.inflight", "{operation}", "The number of operations that are currently in progress.")

	return r
}

// Logger returns the logger used by the recorder.
func (r *Recorder) Logger() *slog.Logger {
	return r.logger
}
