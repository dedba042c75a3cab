package engineconfig

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
	"github.com/google/uuid"
)

// FerriteRegistry is a registry of the environment variables used by the
// engine.
var FerriteRegistry = ferrite.NewRegistry(
	"dogmatiq.ledger",
	"Ledger",
	ferrite.WithDocumentationURL("https://github.com/dogmatiq/ledger#readme"),
)

// Config encapsulates the configuration of a [ledger.Engine], built by
// applying [ledger.EngineOption] functions and, optionally, reading
// environment variables.
type Config struct {
	UseEnv    bool
	NodeID    uuid.UUID
	Telemetry *telemetry.Provider

	Persistence struct {
		Events    eventstore.EventStore
		Keyspaces kv.Store
	}

	Projections struct {
		BatchSize    int
		PollInterval time.Duration
	}

	// closers are called, in reverse order, when the engine is closed. They
	// release resources opened by the configuration itself, such as database
	// connections described by a DSN.
	closers []func() error
}

// New returns a new configuration for a [ledger.Engine].
//
// It panics if the options or environment describe an invalid configuration.
// It returns an error if a store described by a DSN can not be opened.
func New[Option ~func(*Config)](
	ctx context.Context,
	options []Option,
) (*Config, error) {
	c := &Config{
		Telemetry: &telemetry.Provider{},
	}

	for _, opt := range options {
		opt(c)
	}

	if err := c.finalize(ctx); err != nil {
		return nil, errors.Join(err, c.Close())
	}

	return c, nil
}

// Close releases any resources opened by the configuration.
func (c *Config) Close() error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}

	c.closers = nil

	return errors.Join(errs...)
}

func (c *Config) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *Config) finalize(ctx context.Context) error {
	c.finalizeNodeID()
	c.finalizeTelemetry()
	c.finalizeProjections()
	return c.finalizePersistence(ctx)
}
