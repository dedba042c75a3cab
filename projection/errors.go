package projection

import (
	"errors"
	"fmt"

	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// ErrUnresolvedEvent indicates that an event's domain event handle could not
// be resolved, so it can not be routed to projections.
var ErrUnresolvedEvent = errors.New("event has no domain event handle")

// RegistrationError is returned when a projection can not be registered.
type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("unable to register projection %q: %s", e.Name, e.Reason)
}

// ApplicationError is returned when a projection fails to apply an event.
type ApplicationError struct {
	Projection     string
	EventID        eventstore.EventID
	EventType      string
	GlobalSequence uint64
	Cause          error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf(
		"projection %q failed to apply %q event %s: %s",
		e.Projection,
		e.EventType,
		e.EventID,
		e.Cause,
	)
}

func (e *ApplicationError) Unwrap() error {
	return e.Cause
}
