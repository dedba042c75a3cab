package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// RunTests runs tests that confirm an event store implementation behaves
// correctly.
//
// Tests for [AtomicEventStore] and [GlobalReader] are skipped if the store
// does not implement those interfaces.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) EventStore,
) {
	t.Run("type EventStore", func(t *testing.T) {
		t.Run("func LoadStream()", func(t *testing.T) {
			t.Run("it returns an empty slice if the stream does not exist", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)

				events, err := store.LoadStream(ctx, newStreamID())
				if err != nil {
					t.Fatal(err)
				}

				if len(events) != 0 {
					t.Fatalf("expected no events, got %d", len(events))
				}
			})

			t.Run("it returns the events in version order", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				appendOrFail(ctx, t, store, id, NoStream(), newEvents(3))
				appendOrFail(ctx, t, store, id, MustExact(2), newEvents(2))

				events, err := store.LoadStream(ctx, id)
				if err != nil {
					t.Fatal(err)
				}

				expectVersions(t, events, 5)
			})

			t.Run("it does not return events from other streams", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				a, b := newStreamID(), newStreamID()

				appendOrFail(ctx, t, store, a, NoStream(), newEvents(2))
				appendOrFail(ctx, t, store, b, NoStream(), newEvents(1))

				events, err := store.LoadStream(ctx, a)
				if err != nil {
					t.Fatal(err)
				}

				expectVersions(t, events, 2)
				for _, ev := range events {
					if ev.StreamID != a {
						t.Fatalf("unexpected stream ID, want %q, got %q", a, ev.StreamID)
					}
				}
			})
		})

		t.Run("func AppendEvents()", func(t *testing.T) {
			t.Run("it persists the event content", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				want := newEvents(1)
				want[0].Metadata = map[string]string{"<key>": "<value>"}
				want[0].Event = "<handle>"

				appendOrFail(ctx, t, store, id, NoStream(), want)

				got, err := store.LoadStream(ctx, id)
				if err != nil {
					t.Fatal(err)
				}

				want[0].StreamID = id
				want[0].Event = nil

				if diff := cmp.Diff(
					want,
					got,
					cmpopts.EquateEmpty(),
					cmpopts.EquateApproxTime(time.Millisecond),
					cmpopts.IgnoreFields(StoredEvent{}, "GlobalSequence"),
				); diff != "" {
					t.Fatal(diff)
				}
			})

			t.Run("it returns the persisted events", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				appendOrFail(ctx, t, store, id, NoStream(), newEvents(2))
				stored := appendOrFail(ctx, t, store, id, MustExact(1), newEvents(2))

				if len(stored) != 2 {
					t.Fatalf("expected 2 events, got %d", len(stored))
				}

				for i, ev := range stored {
					if ev.Version != int64(i+2) {
						t.Fatalf("unexpected version, want %d, got %d", i+2, ev.Version)
					}
					if ev.GlobalSequence == 0 {
						t.Fatal("expected global sequence to be assigned")
					}
					if ev.StreamID != id {
						t.Fatalf("unexpected stream ID, want %q, got %q", id, ev.StreamID)
					}
				}
			})

			t.Run("it returns a concurrency error if the stream already exists", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				appendOrFail(ctx, t, store, id, NoStream(), newEvents(2))

				_, err := store.AppendEvents(ctx, id, NoStream(), newEvents(1))
				expectConcurrencyError(t, err, id, NoStream(), 1)
				expectStreamLength(ctx, t, store, id, 2)
			})

			t.Run("it returns a concurrency error if the stream does not exist", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				_, err := store.AppendEvents(ctx, id, MustExact(0), newEvents(1))
				expectConcurrencyError(t, err, id, MustExact(0), -1)
				expectStreamLength(ctx, t, store, id, 0)
			})

			t.Run("it returns a concurrency error if the version does not match", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				appendOrFail(ctx, t, store, id, NoStream(), newEvents(3))

				for _, v := range []int64{0, 1, 3, 10} {
					_, err := store.AppendEvents(ctx, id, MustExact(v), newEvents(2))
					expectConcurrencyError(t, err, id, MustExact(v), 2)
				}

				expectStreamLength(ctx, t, store, id, 3)
			})

			t.Run("it returns an error if there are no events", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)

				_, err := store.AppendEvents(ctx, newStreamID(), NoStream(), nil)
				if !errors.Is(err, ErrNoEvents) {
					t.Fatalf("unexpected error, want %q, got %v", ErrNoEvents, err)
				}
			})

			t.Run("it assigns increasing global sequence numbers across streams", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)

				var last uint64
				for i := 0; i < 5; i++ {
					stored := appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(2))

					for _, ev := range stored {
						if ev.GlobalSequence <= last {
							t.Fatalf(
								"expected global sequence to increase, %d follows %d",
								ev.GlobalSequence,
								last,
							)
						}
						last = ev.GlobalSequence
					}
				}
			})

			t.Run("it allows exactly one of several conflicting appends to succeed", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)
				id := newStreamID()

				appendOrFail(ctx, t, store, id, NoStream(), newEvents(1))

				const n = 5
				var (
					wg        sync.WaitGroup
					m         sync.Mutex
					succeeded int
					conflicts int
				)

				for i := 0; i < n; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()

						_, err := store.AppendEvents(ctx, id, MustExact(0), newEvents(1))

						m.Lock()
						defer m.Unlock()

						switch {
						case err == nil:
							succeeded++
						case errors.Is(err, ErrConcurrency):
							conflicts++
						default:
							t.Error(err)
						}
					}()
				}

				wg.Wait()

				if succeeded != 1 || conflicts != n-1 {
					t.Fatalf(
						"expected 1 success and %d conflicts, got %d and %d",
						n-1,
						succeeded,
						conflicts,
					)
				}

				expectStreamLength(ctx, t, store, id, 2)
			})

			t.Run("versions are contiguous after any sequence of appends", func(t *testing.T) {
				t.Parallel()

				ctx, store := setup(t, newStore)

				rapid.Check(t, func(t *rapid.T) {
					id := newStreamID()
					batches := rapid.SliceOfN(rapid.IntRange(1, 4), 1, 5).Draw(t, "batches")

					current := int64(-1)
					total := 0

					for _, n := range batches {
						if _, err := store.AppendEvents(ctx, id, ForVersion(current), newEvents(n)); err != nil {
							t.Fatal(err)
						}
						current += int64(n)
						total += n
					}

					events, err := store.LoadStream(ctx, id)
					if err != nil {
						t.Fatal(err)
					}

					if len(events) != total {
						t.Fatalf("expected %d events, got %d", total, len(events))
					}

					for i, ev := range events {
						if ev.Version != int64(i) {
							t.Fatalf("unexpected version at index %d: %d", i, ev.Version)
						}
					}
				})
			})
		})
	})

	t.Run("type AtomicEventStore", func(t *testing.T) {
		t.Run("func AppendToStreams()", func(t *testing.T) {
			t.Run("it appends to every stream", func(t *testing.T) {
				t.Parallel()

				ctx, store := setupAtomic(t, newStore)
				a, b := newStreamID(), newStreamID()

				appendOrFail(ctx, t, store, b, NoStream(), newEvents(1))

				stored, err := store.AppendToStreams(
					ctx,
					map[StreamID]Batch{
						a: {Expected: NoStream(), Events: newEvents(2)},
						b: {Expected: MustExact(0), Events: newEvents(1)},
					},
				)
				if err != nil {
					t.Fatal(err)
				}

				if len(stored[a]) != 2 || len(stored[b]) != 1 {
					t.Fatalf("unexpected result: %v", stored)
				}

				expectStreamLength(ctx, t, store, a, 2)
				expectStreamLength(ctx, t, store, b, 2)
			})

			t.Run("it appends nothing if any stream has a conflict", func(t *testing.T) {
				t.Parallel()

				ctx, store := setupAtomic(t, newStore)
				a, b := newStreamID(), newStreamID()

				appendOrFail(ctx, t, store, a, NoStream(), newEvents(2))
				appendOrFail(ctx, t, store, b, NoStream(), newEvents(1))

				_, err := store.AppendToStreams(
					ctx,
					map[StreamID]Batch{
						a: {Expected: MustExact(0), Events: newEvents(1)},
						b: {Expected: MustExact(0), Events: newEvents(1)},
					},
				)
				expectConcurrencyError(t, err, a, MustExact(0), 1)

				expectStreamLength(ctx, t, store, a, 2)
				expectStreamLength(ctx, t, store, b, 1)
			})

			t.Run("it appends nothing if a new stream already exists", func(t *testing.T) {
				t.Parallel()

				ctx, store := setupAtomic(t, newStore)
				a, b := newStreamID(), newStreamID()

				appendOrFail(ctx, t, store, b, NoStream(), newEvents(1))

				_, err := store.AppendToStreams(
					ctx,
					map[StreamID]Batch{
						a: {Expected: NoStream(), Events: newEvents(1)},
						b: {Expected: NoStream(), Events: newEvents(1)},
					},
				)
				expectConcurrencyError(t, err, b, NoStream(), 0)

				expectStreamLength(ctx, t, store, a, 0)
				expectStreamLength(ctx, t, store, b, 1)
			})

			t.Run("it returns an error if any batch is empty", func(t *testing.T) {
				t.Parallel()

				ctx, store := setupAtomic(t, newStore)
				a, b := newStreamID(), newStreamID()

				_, err := store.AppendToStreams(
					ctx,
					map[StreamID]Batch{
						a: {Expected: NoStream(), Events: newEvents(1)},
						b: {Expected: NoStream()},
					},
				)
				if !errors.Is(err, ErrNoEvents) {
					t.Fatalf("unexpected error, want %q, got %v", ErrNoEvents, err)
				}

				expectStreamLength(ctx, t, store, a, 0)
			})
		})
	})

	t.Run("type GlobalReader", func(t *testing.T) {
		t.Run("func LoadEventsFromPosition()", func(t *testing.T) {
			t.Run("it returns events at or after the given position", func(t *testing.T) {
				t.Parallel()

				ctx, store, reader := setupReader(t, newStore)

				var all []StoredEvent
				for i := 0; i < 3; i++ {
					all = append(
						all,
						appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(2))...,
					)
				}

				from := all[2].GlobalSequence
				events, err := reader.LoadEventsFromPosition(ctx, from, 100)
				if err != nil {
					t.Fatal(err)
				}

				expectEventIDs(t, events, all[2:])
			})

			t.Run("it returns at most limit events", func(t *testing.T) {
				t.Parallel()

				ctx, store, reader := setupReader(t, newStore)

				all := appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(5))

				events, err := reader.LoadEventsFromPosition(ctx, 0, 3)
				if err != nil {
					t.Fatal(err)
				}

				expectEventIDs(t, events, all[:3])
			})

			t.Run("it returns an empty slice beyond the end of the log", func(t *testing.T) {
				t.Parallel()

				ctx, store, reader := setupReader(t, newStore)

				all := appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(2))

				events, err := reader.LoadEventsFromPosition(ctx, all[1].GlobalSequence+1, 10)
				if err != nil {
					t.Fatal(err)
				}

				if len(events) != 0 {
					t.Fatalf("expected no events, got %d", len(events))
				}
			})
		})

		t.Run("func MaxGlobalSequence()", func(t *testing.T) {
			t.Run("it returns false when the store is empty", func(t *testing.T) {
				t.Parallel()

				ctx, _, reader := setupReader(t, newStore)

				_, ok, err := reader.MaxGlobalSequence(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("expected ok to be false")
				}
			})

			t.Run("it returns the sequence of the most recent event", func(t *testing.T) {
				t.Parallel()

				ctx, store, reader := setupReader(t, newStore)

				appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(2))
				stored := appendOrFail(ctx, t, store, newStreamID(), NoStream(), newEvents(3))

				seq, ok, err := reader.MaxGlobalSequence(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected ok to be true")
				}

				if want := stored[2].GlobalSequence; seq != want {
					t.Fatalf("unexpected sequence, want %d, got %d", want, seq)
				}
			})
		})
	})
}

func setup(
	t *testing.T,
	newStore func(t *testing.T) EventStore,
) (context.Context, EventStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return ctx, newStore(t)
}

func setupAtomic(
	t *testing.T,
	newStore func(t *testing.T) EventStore,
) (context.Context, AtomicEventStore) {
	ctx, store := setup(t, newStore)

	atomic, ok := store.(AtomicEventStore)
	if !ok {
		t.Skip("store does not support atomic multi-stream appends")
	}

	return ctx, atomic
}

func setupReader(
	t *testing.T,
	newStore func(t *testing.T) EventStore,
) (context.Context, EventStore, GlobalReader) {
	ctx, store := setup(t, newStore)

	reader, ok := store.(GlobalReader)
	if !ok {
		t.Skip("store does not support reading in global order")
	}

	return ctx, store, reader
}

func newStreamID() StreamID {
	return StreamID("<stream-" + uuid.NewString() + ">")
}

func newEvents(n int) []StoredEvent {
	events := make([]StoredEvent, n)

	for i := range events {
		events[i] = StoredEvent{
			EventID:    EventID(uuid.NewString()),
			EventType:  "<event-type>",
			Data:       []byte(fmt.Sprintf("<data-%d>", i)),
			OccurredOn: time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	return events
}

func appendOrFail(
	ctx context.Context,
	t *testing.T,
	store EventStore,
	id StreamID,
	expected ExpectedVersion,
	events []StoredEvent,
) []StoredEvent {
	t.Helper()

	stored, err := store.AppendEvents(ctx, id, expected, events)
	if err != nil {
		t.Fatal(err)
	}

	return stored
}

func expectVersions(t *testing.T, events []StoredEvent, n int) {
	t.Helper()

	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}

	for i, ev := range events {
		if ev.Version != int64(i) {
			t.Fatalf("unexpected version at index %d, want %d, got %d", i, i, ev.Version)
		}
	}
}

func expectStreamLength(
	ctx context.Context,
	t *testing.T,
	store EventStore,
	id StreamID,
	n int,
) {
	t.Helper()

	events, err := store.LoadStream(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	expectVersions(t, events, n)
}

func expectEventIDs(t *testing.T, got, want []StoredEvent) {
	t.Helper()

	ids := func(events []StoredEvent) []EventID {
		var ids []EventID
		for _, ev := range events {
			ids = append(ids, ev.EventID)
		}
		return ids
	}

	if diff := cmp.Diff(ids(want), ids(got)); diff != "" {
		t.Fatal(diff)
	}
}

func expectConcurrencyError(
	t *testing.T,
	err error,
	id StreamID,
	expected ExpectedVersion,
	actual int64,
) {
	t.Helper()

	var ce *ConcurrencyError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a concurrency error, got %v", err)
	}

	if !errors.Is(err, ErrConcurrency) {
		t.Fatal("expected error to match ErrConcurrency")
	}

	if diff := cmp.Diff(
		&ConcurrencyError{
			StreamID: id,
			Expected: expected,
			Actual:   actual,
		},
		ce,
		cmp.AllowUnexported(ExpectedVersion{}),
	); diff != "" {
		t.Fatal(diff)
	}
}
