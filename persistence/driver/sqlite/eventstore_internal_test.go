package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/dogmatiq/ledger/internal/test"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/google/uuid"
)

func TestEventStore_conflict(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (context.Context, *EventStore) {
		ctx := test.ContextWithTimeout(t, 5*time.Second)

		db, err := Open(ctx, ":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })

		s := &EventStore{DB: db}

		if _, err := s.AppendToStreams(
			ctx,
			map[eventstore.StreamID]eventstore.Batch{
				"<stream-a>": {Expected: eventstore.NoStream(), Events: newEvents(1)},
				"<stream-b>": {Expected: eventstore.NoStream(), Events: newEvents(2)},
			},
		); err != nil {
			t.Fatal(err)
		}

		return ctx, s
	}

	ids := []eventstore.StreamID{"<stream-a>", "<stream-b>"}

	t.Run("it describes the first stream whose version does not match", func(t *testing.T) {
		t.Parallel()

		ctx, s := setup(t)

		err := s.conflict(
			ctx,
			ids,
			map[eventstore.StreamID]eventstore.Batch{
				"<stream-a>": {Expected: eventstore.MustExact(0)},
				"<stream-b>": {Expected: eventstore.MustExact(0)},
			},
		)

		test.ExpectErrorIs(t, err, eventstore.ErrConcurrency)
		got := test.ExpectErrorAs[*eventstore.ConcurrencyError](t, err)

		if got.StreamID != "<stream-b>" {
			t.Fatalf("unexpected stream: got %q, want %q", got.StreamID, "<stream-b>")
		}

		if got.Expected != eventstore.MustExact(0) {
			t.Fatalf("unexpected expected version: got %s, want 0", got.Expected)
		}

		if got.Actual != 1 {
			t.Fatalf("unexpected actual version: got %d, want 1", got.Actual)
		}
	})

	t.Run("it describes the first stream if every version matches", func(t *testing.T) {
		t.Parallel()

		ctx, s := setup(t)

		err := s.conflict(
			ctx,
			ids,
			map[eventstore.StreamID]eventstore.Batch{
				"<stream-a>": {Expected: eventstore.MustExact(0)},
				"<stream-b>": {Expected: eventstore.MustExact(1)},
			},
		)

		got := test.ExpectErrorAs[*eventstore.ConcurrencyError](t, err)

		if got.StreamID != "<stream-a>" {
			t.Fatalf("unexpected stream: got %q, want %q", got.StreamID, "<stream-a>")
		}

		if got.Actual != 0 {
			t.Fatalf("unexpected actual version: got %d, want 0", got.Actual)
		}
	})

	t.Run("it reports a stream that does not exist", func(t *testing.T) {
		t.Parallel()

		ctx, s := setup(t)

		err := s.conflict(
			ctx,
			[]eventstore.StreamID{"<stream-c>"},
			map[eventstore.StreamID]eventstore.Batch{
				"<stream-c>": {Expected: eventstore.MustExact(3)},
			},
		)

		got := test.ExpectErrorAs[*eventstore.ConcurrencyError](t, err)

		if got.Actual != -1 {
			t.Fatalf("unexpected actual version: got %d, want -1", got.Actual)
		}
	})
}

func newEvents(n int) []eventstore.StoredEvent {
	events := make([]eventstore.StoredEvent, n)

	for i := range events {
		events[i] = eventstore.StoredEvent{
			EventID:    eventstore.EventID(uuid.NewString()),
			EventType:  "<event-type>",
			Data:       []byte("<data>"),
			OccurredOn: time.Now().UTC(),
		}
	}

	return events
}
