package ledger

import (
	"log/slog"
	"time"

	"github.com/dogmatiq/ledger/internal/engineconfig"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// FerriteRegistry is a registry of the environment variables used by the
// engine.
//
// It can be used with the [ferrite] package.
var FerriteRegistry = engineconfig.FerriteRegistry

// An EngineOption configures the behavior of an [Engine].
type EngineOption func(*engineconfig.Config)

// WithOptionsFromEnvironment is an engine option that configures the engine
// using options specified via environment variables.
//
// Any explicit options passed to [New] take precedence over options from the
// environment.
func WithOptionsFromEnvironment() EngineOption {
	return func(cfg *engineconfig.Config) {
		cfg.UseEnv = true
	}
}

// WithNodeID is an [EngineOption] that sets the node ID of the engine.
func WithNodeID(id uuid.UUID) EngineOption {
	if id == uuid.Nil {
		panic("node ID must not be the nil UUID")
	}

	return func(cfg *engineconfig.Config) {
		cfg.NodeID = id
	}
}

// WithTracerProvider is an [EngineOption] that sets the OpenTelemetry tracer
// provider used by the engine.
func WithTracerProvider(p trace.TracerProvider) EngineOption {
	if p == nil {
		panic("tracer provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.TracerProvider = p
	}
}

// WithMetricProvider is an [EngineOption] that sets the OpenTelemetry meter
// provider used by the engine.
func WithMetricProvider(p metric.MeterProvider) EngineOption {
	if p == nil {
		panic("metric provider must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.MeterProvider = p
	}
}

// WithLogger is an [EngineOption] that sets the logger used by the engine.
func WithLogger(l *slog.Logger) EngineOption {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Telemetry.Logger = l
	}
}

// WithEventStore is an [EngineOption] that sets the event store used by the
// engine. The store must also implement [eventstore.GlobalReader].
func WithEventStore(s eventstore.EventStore) EngineOption {
	if s == nil {
		panic("event store must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Persistence.Events = s
	}
}

// WithKeyValueStore is an [EngineOption] that sets the key/value store used by
// the engine for read models, projection positions and dead letters.
func WithKeyValueStore(s kv.Store) EngineOption {
	if s == nil {
		panic("key/value store must not be nil")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Persistence.Keyspaces = s
	}
}

// WithProjectionBatchSize is an [EngineOption] that sets the maximum number of
// events passed to async projections at once.
func WithProjectionBatchSize(n int) EngineOption {
	if n <= 0 {
		panic("batch size must be positive")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Projections.BatchSize = n
	}
}

// WithPollInterval is an [EngineOption] that sets the interval at which the
// engine polls for events to pass to async projections.
func WithPollInterval(d time.Duration) EngineOption {
	if d <= 0 {
		panic("poll interval must be positive")
	}

	return func(cfg *engineconfig.Config) {
		cfg.Projections.PollInterval = d
	}
}
