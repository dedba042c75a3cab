package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

// Commit persists the pending events of every tracked stream.
//
// Each stream is appended with an expected version equal to the version it
// was loaded at, so a concurrent modification of any stream causes the commit
// to fail with a [*eventstore.ConcurrencyError]. In that case nothing is
// persisted (assuming the store supports atomic multi-stream appends) and the
// session's pending events are retained.
//
// If the store implements [eventstore.AtomicEventStore], changes to multiple
// streams are persisted atomically. Otherwise, streams are appended one at a
// time in stream ID order, and a failure part way through results in a
// [*PartialCommitError].
//
// Once the events are persisted they are passed to the inline projector (if
// any). If it fails, the events remain committed and an
// [*InlineProjectionError] is returned.
func (s *Session) Commit(ctx context.Context) (err error) {
	ids := s.dirty()
	if len(ids) == 0 {
		return nil
	}

	ctx, span := s.telem.StartSpan(
		ctx,
		"session.commit",
		telemetry.Int("stream_count", len(ids)),
	)
	defer span.End()

	defer func() {
		if err != nil {
			span.SetError(err)
		}
	}()

	now := s.now()
	batches := make(map[eventstore.StreamID]eventstore.Batch, len(ids))

	for _, id := range ids {
		st := s.streams[id]
		batches[id] = eventstore.Batch{
			Expected: eventstore.ForVersion(st.LoadedVersion),
			Events:   s.newEvents(st, now),
		}
	}

	if store, ok := s.store.(eventstore.AtomicEventStore); ok && len(ids) > 1 {
		persisted, err := store.AppendToStreams(ctx, batches)
		if err != nil {
			return s.commitFailed(ctx, err)
		}

		return s.complete(ctx, ids, persisted)
	}

	if len(ids) > 1 {
		s.telem.Warn(
			ctx,
			"session.commit.non_atomic",
			"event store does not support atomic multi-stream appends, a failure may leave the commit partially persisted",
			telemetry.Int("stream_count", len(ids)),
		)
	}

	persisted := make(map[eventstore.StreamID][]eventstore.StoredEvent, len(ids))
	var committed []eventstore.StreamID

	for _, id := range ids {
		b := batches[id]

		events, err := s.store.AppendEvents(ctx, id, b.Expected, b.Events)
		if err != nil {
			err = s.commitFailed(ctx, err)

			if len(committed) == 0 {
				return err
			}

			// Inline projection failures are logged by complete(), the
			// partial commit takes precedence.
			s.complete(ctx, committed, persisted) // nolint:errcheck

			return &PartialCommitError{
				Committed: committed,
				Failed:    id,
				Cause:     err,
			}
		}

		persisted[id] = events
		committed = append(committed, id)
	}

	return s.complete(ctx, ids, persisted)
}

// dirty returns the IDs of the streams with pending events, in order.
func (s *Session) dirty() []eventstore.StreamID {
	var ids []eventstore.StreamID

	for id, st := range s.streams {
		if len(st.Pending) > 0 {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

func (s *Session) newEvents(st *stream, now time.Time) []eventstore.StoredEvent {
	events := make([]eventstore.StoredEvent, len(st.Pending))

	for i, p := range st.Pending {
		events[i] = eventstore.StoredEvent{
			EventID:    eventstore.EventID(uuid.NewString()),
			EventType:  p.EventType,
			Data:       p.Data,
			OccurredOn: now,
			Metadata:   maps.Clone(s.metadata),
			Event:      p.Event,
		}
	}

	return events
}

func (s *Session) commitFailed(ctx context.Context, err error) error {
	if errors.Is(err, eventstore.ErrConcurrency) {
		s.conflicts(ctx, 1)
		s.telem.Info(ctx, "session.commit.conflict", err.Error())
	} else {
		s.telem.Error(ctx, "session.commit.failed", err)
	}

	return fmt.Errorf("unable to commit session: %w", err)
}

// complete advances the streams identified by ids past their persisted
// events and applies those events to inline projections.
func (s *Session) complete(
	ctx context.Context,
	ids []eventstore.StreamID,
	persisted map[eventstore.StreamID][]eventstore.StoredEvent,
) error {
	var events []eventstore.StoredEvent

	for _, id := range ids {
		st := s.streams[id]
		stored := persisted[id]

		for i := range stored {
			if i < len(st.Pending) {
				stored[i].Event = st.Pending[i].Event
			}
		}

		events = append(events, stored...)
	}

	slices.SortStableFunc(
		events,
		func(a, b eventstore.StoredEvent) int {
			return cmp.Compare(a.GlobalSequence, b.GlobalSequence)
		},
	)

	var inlineErr error
	if s.inline != nil {
		inlineErr = s.inline.Execute(ctx, events)
	}

	for _, id := range ids {
		st := s.streams[id]
		st.LoadedVersion = eventstore.LastVersion(persisted[id])
		st.Pending = nil
	}

	s.commits(ctx, 1)
	s.eventsAppended(ctx, int64(len(events)))

	s.telem.Debug(
		ctx,
		"session.commit.ok",
		"committed session",
		telemetry.Int("stream_count", len(ids)),
		telemetry.Int("event_count", len(events)),
	)

	if inlineErr != nil {
		s.telem.Error(ctx, "session.commit.inline_failed", inlineErr)
		return &InlineProjectionError{Cause: inlineErr}
	}

	return nil
}
