package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dogmatiq/ledger/internal/engineconfig"
	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
	"github.com/dogmatiq/ledger/projection"
	"github.com/dogmatiq/ledger/session"
	"golang.org/x/sync/errgroup"
)

// Serializer converts domain events to and from their persisted form.
type Serializer interface {
	session.Serializer
	projection.Deserializer
}

const (
	positionsKeyspace   = "ledger.positions"
	deadLettersKeyspace = "ledger.dead-letters"
	readModelKeyspace   = "ledger.read-model."
)

// Engine hosts the sessions and projections of an event-sourced application.
type Engine struct {
	config     *engineconfig.Config
	serializer Serializer
	telem      *telemetry.Recorder
	store      kv.Store
	keyspaces  []kv.Keyspace

	registry    *projection.Registry
	inline      *projection.InlineExecutor
	async       *projection.AsyncExecutor
	deadLetters *projection.KeyspaceDeadLetters
	rebuilder   *projection.Rebuilder
	processor   *projection.Processor
}

// New returns a new engine that uses s to serialize events.
//
// It panics if the options describe an invalid configuration. It returns an
// error if the configured stores can not be opened.
func New(
	ctx context.Context,
	s Serializer,
	options ...EngineOption,
) (*Engine, error) {
	if s == nil {
		panic("serializer must not be nil")
	}

	cfg, err := engineconfig.New(ctx, options)
	if err != nil {
		return nil, err
	}

	reader, ok := cfg.Persistence.Events.(eventstore.GlobalReader)
	if !ok {
		cfg.Close()
		panic(fmt.Sprintf("event store (%T) does not support reading in global order", cfg.Persistence.Events))
	}

	e := &Engine{
		config:     cfg,
		serializer: s,
		telem:      cfg.Telemetry.Recorder("engine"),
		store:      kv.WithTelemetry(cfg.Persistence.Keyspaces, cfg.Telemetry),
		registry:   &projection.Registry{},
	}

	positions, err := e.openKeyspace(ctx, positionsKeyspace)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}

	deadLetters, err := e.openKeyspace(ctx, deadLettersKeyspace)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}

	positionStore := &projection.KeyspacePositionStore{Keyspace: positions}
	e.deadLetters = &projection.KeyspaceDeadLetters{Keyspace: deadLetters}

	loader := &projection.DeserializingLoader{
		Reader:       reader,
		Deserializer: s,
	}

	e.inline = &projection.InlineExecutor{
		Registry:  e.registry,
		Telemetry: cfg.Telemetry,
	}

	e.async = &projection.AsyncExecutor{
		Registry:    e.registry,
		Positions:   positionStore,
		DeadLetters: e.deadLetters,
		Telemetry:   cfg.Telemetry,
	}

	e.rebuilder = &projection.Rebuilder{
		Registry:    e.registry,
		Positions:   positionStore,
		Events:      loader,
		DeadLetters: e.deadLetters,
		BatchSize:   cfg.Projections.BatchSize,
		Telemetry:   cfg.Telemetry,
	}

	e.processor = &projection.Processor{
		Events:       loader,
		Executor:     e.async,
		Positions:    positionStore,
		BatchSize:    cfg.Projections.BatchSize,
		PollInterval: cfg.Projections.PollInterval,
		Telemetry:    cfg.Telemetry,
	}

	return e, nil
}

// Projections returns the engine's projection registry.
//
// Projections should be registered before [Engine.Run] is called.
func (e *Engine) Projections() *projection.Registry {
	return e.registry
}

// DeadLetters returns the events that async projections failed to apply.
func (e *Engine) DeadLetters() *projection.KeyspaceDeadLetters {
	return e.deadLetters
}

// NewSession returns a new unit of work that uses b to rebuild aggregates.
//
// Events committed by the session are applied to the engine's inline
// projections before [session.Session.Commit] returns.
func (e *Engine) NewSession(
	b session.BehaviorProvider,
	options ...session.Option,
) *session.Session {
	return session.New(
		e.config.Persistence.Events,
		b,
		e.serializer,
		append(
			[]session.Option{
				session.WithTelemetry(e.config.Telemetry),
				session.WithInlineProjections(&committer{e.inline, e.processor}),
			},
			options...,
		)...,
	)
}

// ProcessBatch passes the next batch of events to the async projections.
//
// It may be used to drive async projections without calling [Engine.Run].
func (e *Engine) ProcessBatch(ctx context.Context) (projection.BatchResult, error) {
	return e.processor.ProcessBatch(ctx)
}

// Rebuild rebuilds the named async projection in the background.
//
// If the projection's state can not be discarded the error is returned
// immediately. A failure of the rebuild itself causes [Engine.Run] to return
// it. The projection remains stale until a rebuild succeeds.
func (e *Engine) Rebuild(ctx context.Context, name string) error {
	return e.rebuilder.Rebuild(ctx, name)
}

// Run starts rebuilding any async projections whose schema has changed and
// then processes events in the background.
//
// It blocks until ctx is canceled or an error occurs, including the failure of
// a rebuild started by [Engine.Rebuild] while the engine is running.
func (e *Engine) Run(ctx context.Context) error {
	rebuilding, err := e.rebuilder.CheckSchemas(ctx)
	if err != nil {
		return err
	}

	e.telem.Info(
		ctx,
		"engine.started",
		"engine started",
		telemetry.Int("projection_count", len(e.registry.Async())+len(e.registry.Inline())),
		telemetry.Int("rebuild_count", len(rebuilding)),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.processor.Run(ctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.rebuilder.Failed():
				if err := e.rebuilder.Err(); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()

	e.telem.Info(ctx, "engine.stopped", "engine stopped")

	return err
}

// Close releases the resources held by the engine.
func (e *Engine) Close() error {
	var errs []error

	for _, ks := range e.keyspaces {
		errs = append(errs, ks.Close())
	}
	e.keyspaces = nil

	errs = append(errs, e.config.Close())

	return errors.Join(errs...)
}

func (e *Engine) openKeyspace(ctx context.Context, name string) (kv.Keyspace, error) {
	ks, err := e.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q keyspace: %w", name, err)
	}

	e.keyspaces = append(e.keyspaces, ks)

	return ks, nil
}

// committer is a [session.InlineProjector] that runs inline projections and
// then prompts the processor to look for the newly committed events.
type committer struct {
	inline    *projection.InlineExecutor
	processor *projection.Processor
}

func (c *committer) Execute(ctx context.Context, events []eventstore.StoredEvent) error {
	err := c.inline.Execute(ctx, events)
	c.processor.Nudge()
	return err
}
