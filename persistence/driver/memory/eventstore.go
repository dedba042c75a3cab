package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dogmatiq/ledger/persistence/eventstore"
	"golang.org/x/exp/maps"
)

// EventStore is an implementation of [eventstore.AtomicEventStore] and
// [eventstore.GlobalReader] that stores events in memory.
type EventStore struct {
	m       sync.RWMutex
	streams map[eventstore.StreamID][]eventstore.StoredEvent
	log     []eventstore.StoredEvent

	// BeforeAppend, if non-nil, is called before events are appended to a
	// stream. If it returns an error the append fails and nothing is
	// persisted.
	BeforeAppend func(eventstore.StreamID, []eventstore.StoredEvent) error
}

var (
	_ eventstore.AtomicEventStore = (*EventStore)(nil)
	_ eventstore.GlobalReader     = (*EventStore)(nil)
)

// LoadStream returns all events in the given stream, ordered by version.
func (s *EventStore) LoadStream(
	ctx context.Context,
	id eventstore.StreamID,
) ([]eventstore.StoredEvent, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	return cloneEvents(s.streams[id]), ctx.Err()
}

// AppendEvents appends events to a stream.
func (s *EventStore) AppendEvents(
	ctx context.Context,
	id eventstore.StreamID,
	expected eventstore.ExpectedVersion,
	events []eventstore.StoredEvent,
) ([]eventstore.StoredEvent, error) {
	stored, err := s.AppendToStreams(
		ctx,
		map[eventstore.StreamID]eventstore.Batch{
			id: {Expected: expected, Events: events},
		},
	)
	return stored[id], err
}

// AppendToStreams appends events to several streams at once.
func (s *EventStore) AppendToStreams(
	ctx context.Context,
	batches map[eventstore.StreamID]eventstore.Batch,
) (map[eventstore.StreamID][]eventstore.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := maps.Keys(batches)
	slices.Sort(ids)

	s.m.Lock()
	defer s.m.Unlock()

	for _, id := range ids {
		b := batches[id]
		current := eventstore.LastVersion(s.streams[id])

		if err := eventstore.CheckAppend(id, b.Expected, current, b.Events); err != nil {
			return nil, err
		}

		if s.BeforeAppend != nil {
			if err := s.BeforeAppend(id, b.Events); err != nil {
				return nil, err
			}
		}
	}

	if s.streams == nil {
		s.streams = map[eventstore.StreamID][]eventstore.StoredEvent{}
	}

	result := make(map[eventstore.StreamID][]eventstore.StoredEvent, len(ids))

	for _, id := range ids {
		stream := s.streams[id]
		stored := eventstore.Stamp(
			id,
			eventstore.LastVersion(stream),
			uint64(len(s.log))+1,
			cloneEvents(batches[id].Events),
		)

		s.streams[id] = append(stream, stored...)
		s.log = append(s.log, stored...)
		result[id] = cloneEvents(stored)
	}

	return result, nil
}

// LoadEventsFromPosition returns up to limit events with a global sequence
// greater than or equal to from.
func (s *EventStore) LoadEventsFromPosition(
	ctx context.Context,
	from uint64,
	limit int,
) ([]eventstore.StoredEvent, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	// Global sequence n is stored at index n-1.
	begin := from
	if begin > 0 {
		begin--
	}

	if begin >= uint64(len(s.log)) || limit <= 0 {
		return nil, ctx.Err()
	}

	end := begin + uint64(limit)
	if end > uint64(len(s.log)) {
		end = uint64(len(s.log))
	}

	return cloneEvents(s.log[begin:end]), ctx.Err()
}

// MaxGlobalSequence returns the global sequence of the most recently appended
// event.
func (s *EventStore) MaxGlobalSequence(ctx context.Context) (uint64, bool, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	n := uint64(len(s.log))
	return n, n > 0, ctx.Err()
}

func cloneEvents(events []eventstore.StoredEvent) []eventstore.StoredEvent {
	if len(events) == 0 {
		return nil
	}

	clone := make([]eventstore.StoredEvent, len(events))

	for i, ev := range events {
		ev.Data = slices.Clone(ev.Data)
		ev.Metadata = maps.Clone(ev.Metadata)
		ev.Event = nil
		clone[i] = ev
	}

	return clone
}
