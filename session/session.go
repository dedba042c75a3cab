package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dogmatiq/ledger/internal/telemetry"
	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// Session is a unit of work that tracks the aggregates loaded or started
// within it, and the events recorded against them.
type Session struct {
	store      eventstore.EventStore
	behaviors  BehaviorProvider
	serializer Serializer

	inline    InlineProjector
	metadata  map[string]string
	now       func() time.Time
	telemetry *telemetry.Provider

	streams map[eventstore.StreamID]*stream

	telem          *telemetry.Recorder
	commits        telemetry.Instrument[int64]
	eventsAppended telemetry.Instrument[int64]
	conflicts      telemetry.Instrument[int64]
}

// stream is the state of a single stream tracked by a session.
type stream struct {
	AggregateType string
	Aggregate     any

	// LoadedVersion is the version of the stream's most recent persisted
	// event, or -1 if the stream has not been persisted.
	LoadedVersion int64

	Pending []pendingEvent
}

type pendingEvent struct {
	Event     any
	EventType string
	Data      []byte
}

// New returns a new session that persists events to store.
func New(
	store eventstore.EventStore,
	behaviors BehaviorProvider,
	serializer Serializer,
	options ...Option,
) *Session {
	if store == nil {
		panic("event store must not be nil")
	}

	if behaviors == nil {
		panic("behavior provider must not be nil")
	}

	if serializer == nil {
		panic("serializer must not be nil")
	}

	s := &Session{
		store:      store,
		behaviors:  behaviors,
		serializer: serializer,
		now:        time.Now,
		streams:    map[eventstore.StreamID]*stream{},
	}

	for _, opt := range options {
		opt(s)
	}

	s.telem = s.telemetry.Recorder("session")
	s.commits = s.telem.Counter("session.commits", "{commit}", "The number of successful session commits.")
	s.eventsAppended = s.telem.Counter("session.events.appended", "{event}", "The number of events persisted by session commits.")
	s.conflicts = s.telem.Counter("session.conflicts", "{conflict}", "The number of session commits rejected due to a concurrency conflict.")

	return s
}

// Load returns the aggregate of type T identified by id.
//
// If the stream is tracked by the session and has pending events, its
// in-session state is returned without consulting the store. Otherwise, the
// stream's events are loaded and replayed, and the stream becomes tracked.
// Loading a stream after [Session.Discard] therefore discards any in-memory
// changes, which is how a session recovers from a concurrency conflict.
//
// It returns a [*eventstore.StreamNotFoundError] if the stream has no events.
func Load[T any](ctx context.Context, s *Session, id eventstore.StreamID) (T, error) {
	var zero T
	aggType := AggregateType[T]()

	if st, ok := s.streams[id]; ok {
		if len(st.Pending) > 0 || st.AggregateType != aggType {
			return aggregateAs[T](id, st)
		}
	}

	st, err := s.load(ctx, id, aggType)
	if err != nil {
		var notFound *eventstore.StreamNotFoundError
		if errors.As(err, &notFound) {
			// A started stream that was discarded before it was committed.
			delete(s.streams, id)
		}
		return zero, err
	}

	result, err := aggregateAs[T](id, st)
	if err != nil {
		return zero, err
	}

	s.streams[id] = st

	return result, nil
}

// load replays the persisted events of the stream identified by id.
func (s *Session) load(
	ctx context.Context,
	id eventstore.StreamID,
	aggType string,
) (*stream, error) {
	events, err := s.store.LoadStream(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("unable to load stream %q: %w", id, err)
	}

	if len(events) == 0 {
		return nil, &eventstore.StreamNotFoundError{StreamID: id}
	}

	var agg any

	for i, ev := range events {
		domainEvent := ev.Event
		if domainEvent == nil {
			domainEvent, err = s.serializer.Deserialize(ev.EventType, ev.Data, ev.Metadata)
			if err != nil {
				return nil, fmt.Errorf("unable to load stream %q at version %d: %w", id, ev.Version, err)
			}
		}

		if i == 0 {
			agg, err = create(s.behaviors, aggType, id, ev.EventType, domainEvent)
		} else {
			agg, err = apply(s.behaviors, aggType, agg, ev.EventType, domainEvent)
		}

		if err != nil {
			return nil, fmt.Errorf("unable to load stream %q at version %d: %w", id, ev.Version, err)
		}
	}

	return &stream{
		AggregateType: aggType,
		Aggregate:     agg,
		LoadedVersion: eventstore.LastVersion(events),
	}, nil
}

// Start begins a new stream identified by id, creating an aggregate of type T
// from creationEvent.
//
// The stream is tracked by the session with the creation event pending. It is
// not persisted until the session is committed, at which point the commit
// fails if the stream already exists in the store.
func Start[T any](s *Session, id eventstore.StreamID, creationEvent any) (T, error) {
	var zero T
	aggType := AggregateType[T]()

	if _, ok := s.streams[id]; ok {
		return zero, fmt.Errorf("unable to start stream %q: %w", id, ErrStreamAlreadyTracked)
	}

	eventType, data, err := s.serializer.Serialize(creationEvent)
	if err != nil {
		return zero, fmt.Errorf("unable to start stream %q: %w", id, err)
	}

	agg, err := create(s.behaviors, aggType, id, eventType, creationEvent)
	if err != nil {
		return zero, fmt.Errorf("unable to start stream %q: %w", id, err)
	}

	st := &stream{
		AggregateType: aggType,
		Aggregate:     agg,
		LoadedVersion: -1,
		Pending: []pendingEvent{
			{creationEvent, eventType, data},
		},
	}

	result, err := aggregateAs[T](id, st)
	if err != nil {
		return zero, err
	}

	s.streams[id] = st

	return result, nil
}

// Get returns the in-session aggregate of type T identified by id, without
// consulting the store.
func Get[T any](s *Session, id eventstore.StreamID) (T, error) {
	st, ok := s.streams[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unable to get stream %q: %w", id, ErrStreamNotTracked)
	}

	return aggregateAs[T](id, st)
}

// Append records an event against a tracked stream, applying it to the
// stream's aggregate immediately.
//
// The event is not persisted until the session is committed.
func (s *Session) Append(id eventstore.StreamID, event any) error {
	st, ok := s.streams[id]
	if !ok {
		return fmt.Errorf("unable to append to stream %q: %w", id, ErrStreamNotTracked)
	}

	eventType, data, err := s.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("unable to append to stream %q: %w", id, err)
	}

	agg, err := apply(s.behaviors, st.AggregateType, st.Aggregate, eventType, event)
	if err != nil {
		return fmt.Errorf("unable to append to stream %q: %w", id, err)
	}

	st.Aggregate = agg
	st.Pending = append(st.Pending, pendingEvent{event, eventType, data})

	return nil
}

// Discard drops the pending events of the stream identified by id.
//
// The in-memory aggregate is not reverted; it may still reflect the discarded
// events. A subsequent [Load] replaces it with the persisted state.
func (s *Session) Discard(id eventstore.StreamID) {
	if st, ok := s.streams[id]; ok {
		st.Pending = nil
	}
}

// DiscardAll drops the pending events of every tracked stream.
func (s *Session) DiscardAll() {
	for _, st := range s.streams {
		st.Pending = nil
	}
}

// Tracked returns true if the stream identified by id is tracked by the
// session.
func (s *Session) Tracked(id eventstore.StreamID) bool {
	_, ok := s.streams[id]
	return ok
}

// Version returns the version of the most recent persisted event in the
// stream identified by id, or -1 if the stream has not been persisted.
//
// ok is false if the stream is not tracked.
func (s *Session) Version(id eventstore.StreamID) (v int64, ok bool) {
	st, ok := s.streams[id]
	if !ok {
		return 0, false
	}
	return st.LoadedVersion, true
}

// Pending returns the number of uncommitted events recorded against the
// stream identified by id.
func (s *Session) Pending(id eventstore.StreamID) int {
	if st, ok := s.streams[id]; ok {
		return len(st.Pending)
	}
	return 0
}

func create(
	b BehaviorProvider,
	aggType string,
	id eventstore.StreamID,
	eventType string,
	event any,
) (any, error) {
	fn, ok := b.Factory(aggType, eventType)
	if !ok {
		return nil, &InvalidCreationEventError{aggType, eventType}
	}

	return fn(id, event)
}

func apply(
	b BehaviorProvider,
	aggType string,
	agg any,
	eventType string,
	event any,
) (any, error) {
	fn, ok := b.Applier(aggType, eventType)
	if !ok {
		return nil, &UnsupportedEventError{aggType, eventType}
	}

	return fn(agg, event)
}

func aggregateAs[T any](id eventstore.StreamID, st *stream) (T, error) {
	if agg, ok := st.Aggregate.(T); ok {
		return agg, nil
	}

	var zero T
	return zero, &AggregateTypeError{
		StreamID: id,
		Want:     AggregateType[T](),
		Got:      fmt.Sprintf("%T", st.Aggregate),
	}
}
