package projection

import (
	"context"
	"sync"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// Result is a tally of the outcomes of applying events to async projections.
//
// Each of Succeeded, Failed and Skipped counts event/projection pairs.
type Result struct {
	// Events is the number of events processed.
	Events int

	// Succeeded is the number of pairs that were applied.
	Succeeded int

	// Failed is the number of pairs that could not be applied.
	Failed int

	// Skipped is the number of pairs that were not applied, either because
	// the projection is being rebuilt or because it has already processed the
	// event.
	Skipped int
}

func (r *Result) add(o outcome) {
	switch o {
	case succeeded:
		r.Succeeded++
	case failed:
		r.Failed++
	case skipped:
		r.Skipped++
	}
}

type outcome int

const (
	succeeded outcome = iota
	failed
	skipped
)

// AsyncExecutor applies events to async projections.
//
// Failures are isolated to each event/projection pair. A failed pair does not
// advance the projection's position, and is recorded in DeadLetters, if set.
type AsyncExecutor struct {
	Registry    *Registry
	Positions   PositionStore
	DeadLetters DeadLetterStore
	Telemetry   *telemetry.Provider

	once     sync.Once
	telem    *telemetry.Recorder
	applied  telemetry.Instrument[int64]
	failures telemetry.Instrument[int64]
}

func (x *AsyncExecutor) init() {
	x.once.Do(func() {
		x.telem = x.Telemetry.Recorder(
			"projection",
			telemetry.String("lifecycle", Async.String()),
		)
		x.applied = x.telem.Counter("projection.events.applied", "{event}", "The number of events applied to projections.")
		x.failures = x.telem.Counter("projection.failures", "{failure}", "The number of events that projections failed to apply.")
	})
}

// ProcessEvents applies events, in order, to the async projections that
// handle them.
//
// It only returns an error if ctx is canceled, in which case the result
// reflects the events processed before cancellation.
func (x *AsyncExecutor) ProcessEvents(
	ctx context.Context,
	events []eventstore.StoredEvent,
) (Result, error) {
	x.init()

	var res Result

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Events++

		if ev.Event == nil {
			for _, reg := range x.Registry.Async() {
				x.fail(ctx, reg, ev, &ApplicationError{
					Projection:     reg.Name(),
					EventID:        ev.EventID,
					EventType:      ev.EventType,
					GlobalSequence: ev.GlobalSequence,
					Cause:          ErrUnresolvedEvent,
				})
				res.Failed++
			}
			continue
		}

		for _, reg := range x.Registry.ProjectionsFor(ev.EventType, Async) {
			res.add(x.process(ctx, reg, ev))
		}
	}

	return res, ctx.Err()
}

func (x *AsyncExecutor) process(
	ctx context.Context,
	reg *Registration,
	ev eventstore.StoredEvent,
) outcome {
	reg.m.Lock()
	defer reg.m.Unlock()

	if reg.IsStale() {
		return skipped
	}

	pos, ok, err := x.Positions.LoadPosition(ctx, reg.Name())
	if err != nil {
		x.fail(ctx, reg, ev, err)
		return failed
	}

	if ok && pos.Processed && ev.GlobalSequence <= pos.LastProcessedSequence {
		x.telem.Debug(
			ctx,
			"projection.apply.redelivered",
			"skipped event that has already been applied",
			telemetry.String("projection", reg.Name()),
			telemetry.String("event_id", ev.EventID),
			telemetry.Int("global_sequence", ev.GlobalSequence),
		)
		return skipped
	}

	if err := reg.applyEvent(ctx, ev); err != nil {
		x.fail(ctx, reg, ev, err)
		return failed
	}

	if err := x.Positions.SavePosition(
		ctx,
		reg.Name(),
		Position{
			LastProcessedSequence: ev.GlobalSequence,
			Processed:             true,
			SchemaHash:            reg.descriptor.SchemaHash,
		},
	); err != nil {
		x.fail(ctx, reg, ev, err)
		return failed
	}

	x.applied(ctx, 1, telemetry.String("projection", reg.Name()))

	return succeeded
}

func (x *AsyncExecutor) fail(
	ctx context.Context,
	reg *Registration,
	ev eventstore.StoredEvent,
	err error,
) {
	x.failures(ctx, 1, telemetry.String("projection", reg.Name()))
	x.telem.Error(
		ctx,
		"projection.apply.failed",
		err,
		telemetry.String("projection", reg.Name()),
		telemetry.String("event_id", ev.EventID),
		telemetry.Int("global_sequence", ev.GlobalSequence),
	)

	if x.DeadLetters == nil {
		return
	}

	if dlErr := x.DeadLetters.RecordDeadLetter(
		ctx,
		newDeadLetter(reg.Name(), ev, err),
	); dlErr != nil {
		x.telem.Error(
			ctx,
			"projection.dead_letter.failed",
			dlErr,
			telemetry.String("projection", reg.Name()),
			telemetry.String("event_id", ev.EventID),
		)
	}
}
