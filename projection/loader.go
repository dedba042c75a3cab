package projection

import (
	"context"

	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// EventLoader loads events in global sequence order.
type EventLoader interface {
	// LoadEvents returns up to limit events with a global sequence greater
	// than or equal to from, in ascending order.
	LoadEvents(ctx context.Context, from uint64, limit int) ([]eventstore.StoredEvent, error)
}

// Deserializer converts persisted event data back into domain events.
type Deserializer interface {
	Deserialize(eventType string, data []byte, metadata map[string]string) (any, error)
}

// DeserializingLoader is an [EventLoader] that reads from an
// [eventstore.GlobalReader] and resolves each event's domain event handle.
//
// Events that can not be deserialized are returned without a handle.
type DeserializingLoader struct {
	Reader       eventstore.GlobalReader
	Deserializer Deserializer
}

// LoadEvents returns up to limit events with a global sequence greater than
// or equal to from.
func (l *DeserializingLoader) LoadEvents(
	ctx context.Context,
	from uint64,
	limit int,
) ([]eventstore.StoredEvent, error) {
	events, err := l.Reader.LoadEventsFromPosition(ctx, from, limit)
	if err != nil {
		return nil, err
	}

	for i, ev := range events {
		if ev.Event != nil {
			continue
		}

		if e, err := l.Deserializer.Deserialize(ev.EventType, ev.Data, ev.Metadata); err == nil {
			events[i].Event = e
		}
	}

	return events, nil
}
