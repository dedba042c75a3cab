package eventstore

import (
	"time"
)

// StreamID is the identity of a single entity's event sequence.
type StreamID string

// EventID is the globally unique identity of a single event.
type EventID string

// StoredEvent is an event that has been (or is about to be) persisted to an
// [EventStore].
type StoredEvent struct {
	// EventID uniquely identifies the event.
	EventID EventID

	// StreamID is the stream that the event belongs to.
	StreamID StreamID

	// Version is the event's offset within its stream. The first event in a
	// stream is at version 0.
	Version int64

	// EventType is a stable discriminator used to (de)serialize the event.
	EventType string

	// Data is the serialized event payload.
	Data []byte

	// OccurredOn is the time at which the event was recorded.
	OccurredOn time.Time

	// Metadata contains arbitrary key/value annotations.
	Metadata map[string]string

	// GlobalSequence is the event's position in the store-wide ordering of
	// events. It is assigned by the store when the event is appended. The first
	// event in the store has a global sequence of 1. A value of zero means the
	// sequence has not been assigned.
	GlobalSequence uint64

	// Event is the deserialized domain event, if available. It is never
	// persisted.
	Event any
}

// WithEvent returns a copy of e with its domain event handle set to ev.
func (e StoredEvent) WithEvent(ev any) StoredEvent {
	e.Event = ev
	return e
}

// LastVersion returns the version of the last event in events, or -1 if events
// is empty.
func LastVersion(events []StoredEvent) int64 {
	if len(events) == 0 {
		return -1
	}
	return events[len(events)-1].Version
}
