package session

import (
	"errors"
	"fmt"

	"github.com/dogmatiq/ledger/persistence/eventstore"
)

var (
	// ErrStreamNotTracked is returned when operating on a stream that has not
	// been loaded or started within the session.
	ErrStreamNotTracked = errors.New("stream is not tracked by this session")

	// ErrStreamAlreadyTracked is returned when starting a stream that is
	// already tracked by the session.
	ErrStreamAlreadyTracked = errors.New("stream is already tracked by this session")
)

// UnsupportedEventError is returned when an aggregate has no applier for an
// event type.
type UnsupportedEventError struct {
	AggregateType string
	EventType     string
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf(
		"%s does not support %q events",
		e.AggregateType,
		e.EventType,
	)
}

// InvalidCreationEventError is returned when an aggregate has no factory for
// the event type used to create it.
type InvalidCreationEventError struct {
	AggregateType string
	EventType     string
}

func (e *InvalidCreationEventError) Error() string {
	return fmt.Sprintf(
		"%s can not be created by %q events",
		e.AggregateType,
		e.EventType,
	)
}

// AggregateTypeError is returned when a stream's aggregate is not of the type
// requested by the caller.
type AggregateTypeError struct {
	StreamID eventstore.StreamID
	Want     string
	Got      string
}

func (e *AggregateTypeError) Error() string {
	return fmt.Sprintf(
		"stream %q holds a %s aggregate, not %s",
		e.StreamID,
		e.Got,
		e.Want,
	)
}

// InlineProjectionError is returned by [Session.Commit] when the events were
// persisted but an inline projection failed to apply them.
//
// The events are durable; the session has already advanced past them.
type InlineProjectionError struct {
	Cause error
}

func (e *InlineProjectionError) Error() string {
	return fmt.Sprintf(
		"events were committed but an inline projection failed: %s",
		e.Cause,
	)
}

func (e *InlineProjectionError) Unwrap() error {
	return e.Cause
}

// PartialCommitError is returned by [Session.Commit] when the event store
// does not support atomic multi-stream appends and some, but not all, of the
// streams were persisted.
type PartialCommitError struct {
	Committed []eventstore.StreamID
	Failed    eventstore.StreamID
	Cause     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf(
		"non-atomic commit persisted %d stream(s) before failing on stream %q: %s",
		len(e.Committed),
		e.Failed,
		e.Cause,
	)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Cause
}
