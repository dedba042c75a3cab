package session

import (
	"context"
	"time"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"golang.org/x/exp/maps"
)

// Serializer converts domain events to and from their persisted form.
type Serializer interface {
	Serialize(event any) (eventType string, data []byte, err error)
	Deserialize(eventType string, data []byte, metadata map[string]string) (any, error)
}

// InlineProjector applies newly committed events to inline projections
// before [Session.Commit] returns.
type InlineProjector interface {
	Execute(ctx context.Context, events []eventstore.StoredEvent) error
}

// Option is an option that changes the behavior of a [Session].
type Option func(*Session)

// WithMetadata returns an option that attaches metadata to every event
// committed by the session.
func WithMetadata(md map[string]string) Option {
	return func(s *Session) {
		if s.metadata == nil {
			s.metadata = map[string]string{}
		}
		maps.Copy(s.metadata, md)
	}
}

// WithClock returns an option that sets the function used to timestamp
// events.
func WithClock(now func() time.Time) Option {
	if now == nil {
		panic("clock must not be nil")
	}

	return func(s *Session) {
		s.now = now
	}
}

// WithInlineProjections returns an option that applies committed events to
// inline projections before [Session.Commit] returns.
func WithInlineProjections(p InlineProjector) Option {
	return func(s *Session) {
		s.inline = p
	}
}

// WithTelemetry returns an option that sets the telemetry provider used by
// the session.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Session) {
		s.telemetry = p
	}
}
