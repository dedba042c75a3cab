package projection

import (
	"context"
	"sync"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// InlineExecutor applies newly committed events to inline projections.
type InlineExecutor struct {
	Registry  *Registry
	Telemetry *telemetry.Provider

	once    sync.Once
	telem   *telemetry.Recorder
	applied telemetry.Instrument[int64]
}

func (x *InlineExecutor) init() {
	x.once.Do(func() {
		x.telem = x.Telemetry.Recorder(
			"projection",
			telemetry.String("lifecycle", Inline.String()),
		)
		x.applied = x.telem.Counter("projection.events.applied", "{event}", "The number of events applied to projections.")
	})
}

// Execute applies events to the inline projections that handle them.
//
// Events without a domain event handle are ignored. It returns an
// [*ApplicationError] for the first failure, without applying any subsequent
// events.
func (x *InlineExecutor) Execute(ctx context.Context, events []eventstore.StoredEvent) error {
	x.init()

	for _, ev := range events {
		if ev.Event == nil {
			continue
		}

		for _, reg := range x.Registry.ProjectionsFor(ev.EventType, Inline) {
			reg.m.Lock()
			err := reg.applyEvent(ctx, ev)
			reg.m.Unlock()

			if err != nil {
				x.telem.Error(
					ctx,
					"projection.apply.failed",
					err,
					telemetry.String("projection", reg.Name()),
					telemetry.String("event_id", ev.EventID),
				)
				return err
			}

			x.applied(ctx, 1, telemetry.String("projection", reg.Name()))
		}
	}

	return nil
}
