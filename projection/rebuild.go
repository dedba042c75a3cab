package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dogmatiq/ledger/internal/signaling"
	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// DefaultBatchSize is the number of events loaded at a time when no batch
// size is configured.
const DefaultBatchSize = 100

// Rebuilder detects async projections whose schema has changed and rebuilds
// them from the beginning of the event log.
//
// While a projection is being rebuilt it is marked as stale. Queries return
// stale results, and the [AsyncExecutor] skips the projection. A projection
// whose rebuild fails remains stale until a later rebuild succeeds.
type Rebuilder struct {
	Registry    *Registry
	Positions   PositionStore
	Events      EventLoader
	DeadLetters DeadLetterStore
	BatchSize   int
	Telemetry   *telemetry.Provider

	once     sync.Once
	telem    *telemetry.Recorder
	inflight telemetry.Instrument[int64]

	wg     sync.WaitGroup
	m      sync.Mutex
	errs   []error
	failed signaling.Doorbell
}

func (r *Rebuilder) init() {
	r.once.Do(func() {
		r.telem = r.Telemetry.Recorder("rebuild")
		r.inflight = r.telem.UpDownCounter("rebuild.inflight", "{rebuild}", "The number of projection rebuilds in progress.")
	})
}

// CheckSchemas compares the schema hash recorded with each async projection's
// position against the projection's current schema hash.
//
// Each projection that does not match, or that has no recorded position, is
// marked as stale, has its read models and position cleared, and is rebuilt
// in the background. It returns the names of those projections.
//
// The rebuilds run until they complete or ctx is canceled.
func (r *Rebuilder) CheckSchemas(ctx context.Context) ([]string, error) {
	r.init()

	var names []string

	for _, reg := range r.Registry.Async() {
		pos, ok, err := r.Positions.LoadPosition(ctx, reg.Name())
		if err != nil {
			return names, fmt.Errorf("unable to check schema of projection %q: %w", reg.Name(), err)
		}

		if ok && pos.SchemaHash == reg.descriptor.SchemaHash {
			continue
		}

		started, err := r.start(ctx, reg)
		if err != nil {
			return names, err
		}

		if started {
			r.telem.Info(
				ctx,
				"rebuild.schema_changed",
				"projection schema has changed, rebuilding",
				telemetry.String("projection", reg.Name()),
				telemetry.String("stored_schema_hash", pos.SchemaHash),
				telemetry.String("schema_hash", reg.descriptor.SchemaHash),
			)
			names = append(names, reg.Name())
		}
	}

	return names, nil
}

// Rebuild unconditionally rebuilds the named async projection in the
// background.
func (r *Rebuilder) Rebuild(ctx context.Context, name string) error {
	r.init()

	reg, ok := r.Registry.Lookup(name)
	if !ok || reg.Lifecycle() != Async {
		return fmt.Errorf("unable to rebuild projection %q: no such async projection", name)
	}

	_, err := r.start(ctx, reg)
	return err
}

// Wait blocks until all rebuilds have finished. It returns the errors of the
// rebuilds that have failed since the previous call to Wait or [Rebuilder.Err].
func (r *Rebuilder) Wait() error {
	r.wg.Wait()
	return r.Err()
}

// Err returns the errors of the rebuilds that have failed since the previous
// call to Err or [Rebuilder.Wait], without waiting for in-flight rebuilds.
func (r *Rebuilder) Err() error {
	r.m.Lock()
	defer r.m.Unlock()

	err := errors.Join(r.errs...)
	r.errs = nil

	return err
}

// Failed returns a channel that becomes readable when a rebuild fails. The
// failure is then available from [Rebuilder.Err].
func (r *Rebuilder) Failed() <-chan struct{} {
	return r.failed.Rung()
}

// start marks reg as stale, discards its state and begins rebuilding it. It
// returns false if a rebuild is already in progress.
//
// If the projection's state can not be discarded it is left stale and may be
// rebuilt again.
func (r *Rebuilder) start(ctx context.Context, reg *Registration) (bool, error) {
	if !reg.rebuilding.CompareAndSwap(false, true) {
		return false, nil
	}

	// Wait for any in-flight application of an event to finish before the
	// read models are cleared.
	reg.m.Lock()
	reg.stale.Store(true)
	reg.m.Unlock()

	if err := reg.clear(ctx); err != nil {
		reg.rebuilding.Store(false)
		return false, fmt.Errorf("unable to clear read models of projection %q: %w", reg.Name(), err)
	}

	if err := r.Positions.ResetPosition(ctx, reg.Name()); err != nil {
		reg.rebuilding.Store(false)
		return false, fmt.Errorf("unable to reset position of projection %q: %w", reg.Name(), err)
	}

	r.inflight(ctx, 1)
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.inflight(context.Background(), -1)

		err := r.rebuild(ctx, reg)
		reg.rebuilding.Store(false)

		if err != nil {
			r.telem.Error(ctx, "rebuild.failed", err, telemetry.String("projection", reg.Name()))

			r.m.Lock()
			r.errs = append(r.errs, err)
			r.m.Unlock()

			r.failed.Ring()
		}
	}()

	return true, nil
}

func (r *Rebuilder) rebuild(ctx context.Context, reg *Registration) error {
	ctx, span := r.telem.StartSpan(
		ctx,
		"rebuild",
		telemetry.String("projection", reg.Name()),
	)
	defer span.End()

	var pos Position

	// The bulk of the log is replayed without holding the registration's
	// lock, so that the processor is not blocked. The remainder is replayed
	// with the lock held so that no event is skipped between the last replayed
	// event and the projection becoming current.
	n, err := r.catchUp(ctx, reg, &pos)
	if err != nil {
		span.SetError(err)
		return err
	}

	reg.m.Lock()
	defer reg.m.Unlock()

	m, err := r.catchUp(ctx, reg, &pos)
	if err != nil {
		span.SetError(err)
		return err
	}

	pos.SchemaHash = reg.descriptor.SchemaHash

	if err := r.Positions.SavePosition(ctx, reg.Name(), pos); err != nil {
		span.SetError(err)
		return fmt.Errorf("unable to save position of projection %q: %w", reg.Name(), err)
	}

	reg.stale.Store(false)

	r.telem.Info(
		ctx,
		"rebuild.complete",
		"projection rebuild complete",
		telemetry.String("projection", reg.Name()),
		telemetry.Int("event_count", n+m),
		telemetry.Duration("elapsed", span.Elapsed()),
	)

	return nil
}

// catchUp applies all events after pos to reg, advancing pos. It returns the
// number of events scanned.
func (r *Rebuilder) catchUp(
	ctx context.Context,
	reg *Registration,
	pos *Position,
) (int, error) {
	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	count := 0

	for {
		events, err := r.Events.LoadEvents(ctx, pos.Next(), size)
		if err != nil {
			return count, fmt.Errorf("unable to load events for projection %q: %w", reg.Name(), err)
		}

		if len(events) == 0 {
			return count, nil
		}

		for _, ev := range events {
			if reg.Handles(ev.EventType) {
				if err := reg.applyEvent(ctx, ev); err != nil {
					if ctx.Err() != nil {
						return count, err
					}
					r.fail(ctx, reg, ev, err)
				}
			}

			pos.LastProcessedSequence = ev.GlobalSequence
			pos.Processed = true
			count++
		}
	}
}

func (r *Rebuilder) fail(
	ctx context.Context,
	reg *Registration,
	ev eventstore.StoredEvent,
	err error,
) {
	r.telem.Error(
		ctx,
		"rebuild.apply.failed",
		err,
		telemetry.String("projection", reg.Name()),
		telemetry.String("event_id", ev.EventID),
		telemetry.Int("global_sequence", ev.GlobalSequence),
	)

	if r.DeadLetters == nil {
		return
	}

	if dlErr := r.DeadLetters.RecordDeadLetter(
		ctx,
		newDeadLetter(reg.Name(), ev, err),
	); dlErr != nil {
		r.telem.Error(ctx, "rebuild.dead_letter.failed", dlErr, telemetry.String("projection", reg.Name()))
	}
}
