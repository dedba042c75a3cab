package eventstore

import "context"

// EventStore is a durable store of per-stream event sequences.
type EventStore interface {
	// LoadStream returns all events in the given stream, ordered by version.
	//
	// It returns an empty slice if the stream does not exist.
	LoadStream(ctx context.Context, id StreamID) ([]StoredEvent, error)

	// AppendEvents appends events to a stream.
	//
	// If the stream's current version does not satisfy expected, it returns a
	// [*ConcurrencyError] and nothing is persisted.
	//
	// The store assigns each event's Version, continuing on from the stream's
	// current version, and its GlobalSequence. The returned slice contains the
	// events as they were persisted.
	AppendEvents(
		ctx context.Context,
		id StreamID,
		expected ExpectedVersion,
		events []StoredEvent,
	) ([]StoredEvent, error)
}

// Batch is a set of events to append to a single stream as part of an atomic
// multi-stream append.
type Batch struct {
	Expected ExpectedVersion
	Events   []StoredEvent
}

// AtomicEventStore is an [EventStore] that can append to multiple streams
// atomically.
type AtomicEventStore interface {
	EventStore

	// AppendToStreams appends events to several streams at once.
	//
	// Either every batch is persisted, or none are. If any batch's expected
	// version is not satisfied the [*ConcurrencyError] for that stream is
	// returned.
	AppendToStreams(
		ctx context.Context,
		batches map[StreamID]Batch,
	) (map[StreamID][]StoredEvent, error)
}

// GlobalReader reads events in global sequence order, across all streams.
type GlobalReader interface {
	// LoadEventsFromPosition returns up to limit events with a global
	// sequence greater than or equal to from, in ascending order.
	LoadEventsFromPosition(
		ctx context.Context,
		from uint64,
		limit int,
	) ([]StoredEvent, error)

	// MaxGlobalSequence returns the global sequence of the most recently
	// appended event. ok is false if the store is empty.
	MaxGlobalSequence(ctx context.Context) (seq uint64, ok bool, err error)
}
