package eventstore

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrency is matched (via [errors.Is]) by every
	// [ConcurrencyError].
	ErrConcurrency = errors.New("optimistic concurrency conflict")

	// ErrInvalidArgument indicates that an operation was called with an
	// invalid argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoEvents is returned when attempting to append an empty batch of
	// events.
	ErrNoEvents = errors.New("no events to append")
)

// ConcurrencyError is returned when an append's expected version does not
// match the stream's actual version.
type ConcurrencyError struct {
	StreamID StreamID
	Expected ExpectedVersion

	// Actual is the version of the stream's most recent event, or -1 if the
	// stream does not exist.
	Actual int64
}

func (e *ConcurrencyError) Error() string {
	actual := "no-stream"
	if e.Actual >= 0 {
		actual = fmt.Sprint(e.Actual)
	}

	return fmt.Sprintf(
		"optimistic concurrency conflict on stream %q: expected version %s, actual version %s",
		e.StreamID,
		e.Expected,
		actual,
	)
}

// Is returns true if target is [ErrConcurrency].
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrency
}

// StreamNotFoundError is returned when loading a stream that has no events.
type StreamNotFoundError struct {
	StreamID StreamID
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream %q not found", e.StreamID)
}
