package eventstore

import "fmt"

// CheckAppend returns an error if events can not be appended to the stream
// identified by id, given that the stream's most recent event is at version
// current (-1 if the stream does not exist).
//
// It is intended for use by [EventStore] implementations.
func CheckAppend(
	id StreamID,
	expected ExpectedVersion,
	current int64,
	events []StoredEvent,
) error {
	if len(events) == 0 {
		return fmt.Errorf("stream %q: %w", id, ErrNoEvents)
	}

	if !expected.Matches(current) {
		return &ConcurrencyError{
			StreamID: id,
			Expected: expected,
			Actual:   current,
		}
	}

	return nil
}

// Stamp returns copies of events with their stream ID and versions set,
// continuing on from current. Global sequence numbers are assigned starting at
// nextSeq, unless nextSeq is zero.
//
// It is intended for use by [EventStore] implementations.
func Stamp(
	id StreamID,
	current int64,
	nextSeq uint64,
	events []StoredEvent,
) []StoredEvent {
	stamped := make([]StoredEvent, len(events))

	for i, ev := range events {
		ev.StreamID = id
		ev.Version = current + 1 + int64(i)
		if nextSeq != 0 {
			ev.GlobalSequence = nextSeq + uint64(i)
		}
		stamped[i] = ev
	}

	return stamped
}
