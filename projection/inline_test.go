package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/dogmatiq/ledger/internal/test"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	. "github.com/dogmatiq/ledger/projection"
)

func TestInlineExecutor(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, poison ...int64) (*fixture, *InlineExecutor, *Handle[string, balance]) {
		f := newFixture(t)

		h, err := RegisterInline(f.Registry, balanceDescriptor("balances"), balanceProjection(poison...), f.store(t, "balances"))
		if err != nil {
			t.Fatal(err)
		}

		x := &InlineExecutor{
			Registry:  f.Registry,
			Telemetry: test.NewTelemetryProvider(t),
		}

		return f, x, h
	}

	t.Run("it applies events to the projections that handle them", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)

		events := f.append(
			t,
			"acct-1",
			accountOpened{"acct-1", "alice"},
			fundsDeposited{"acct-1", 100},
			fundsDeposited{"acct-1", 20},
		)

		if err := x.Execute(ctx, events); err != nil {
			t.Fatal(err)
		}

		res, err := h.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(
			t,
			"unexpected read model",
			res,
			ReadModelResult[balance]{
				Value: balance{Owner: "alice", Amount: 120},
				Found: true,
			},
		)
	})

	t.Run("it ignores events without a domain event handle", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)

		events := f.append(t, "acct-1", accountOpened{"acct-1", "alice"})
		events[0].Event = nil

		if err := x.Execute(ctx, events); err != nil {
			t.Fatal(err)
		}

		res, err := h.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}

		if res.Found {
			t.Fatal("did not expect a read model")
		}
	})

	t.Run("it ignores async projections", func(t *testing.T) {
		t.Parallel()

		f, x, _ := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)

		h, err := RegisterAsync(f.Registry, balanceDescriptor("async"), balanceProjection(), f.store(t, "async"))
		if err != nil {
			t.Fatal(err)
		}

		if err := x.Execute(ctx, f.append(t, "acct-1", accountOpened{"acct-1", "alice"})); err != nil {
			t.Fatal(err)
		}

		res, err := h.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}

		if res.Found {
			t.Fatal("did not expect the async projection to be applied")
		}
	})

	t.Run("it returns an application error if a projection fails", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t, 13)
		ctx := test.ContextWithTimeout(t, time.Second)

		events := f.append(
			t,
			"acct-1",
			accountOpened{"acct-1", "alice"},
			fundsDeposited{"acct-1", 13},
			fundsDeposited{"acct-1", 5},
		)

		err := x.Execute(ctx, events)

		got := test.ExpectErrorAs[*ApplicationError](t, err)
		test.Expect(
			t,
			"unexpected error details",
			[]any{got.Projection, got.EventID, got.GlobalSequence},
			[]any{"balances", events[1].EventID, uint64(2)},
		)

		res, err := h.Query(context.Background(), "acct-1")
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "expected later events not to be applied", res.Value.Amount, 0)
	})
}

func TestAsyncExecutor(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, poison ...int64) (*fixture, *AsyncExecutor, *Handle[string, balance]) {
		f := newFixture(t)

		h, err := RegisterAsync(f.Registry, balanceDescriptor("balances"), balanceProjection(poison...), f.store(t, "balances"))
		if err != nil {
			t.Fatal(err)
		}

		x := &AsyncExecutor{
			Registry:    f.Registry,
			Positions:   f.Positions,
			DeadLetters: f.DeadLetters,
			Telemetry:   test.NewTelemetryProvider(t),
		}

		return f, x, h
	}

	deposits := func(f *fixture, t *testing.T, amounts ...int64) []eventstore.StoredEvent {
		events := []any{accountOpened{"acct-1", "alice"}}
		for _, a := range amounts {
			events = append(events, fundsDeposited{"acct-1", a})
		}
		return f.append(t, "acct-1", events...)
	}

	t.Run("it records the position of the last event applied", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)
		events := deposits(f, t, 1, 2, 3, 4)

		res, err := x.ProcessEvents(ctx, events)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected result", res, Result{Events: 5, Succeeded: 5})

		pos, ok, err := f.Positions.LoadPosition(ctx, "balances")
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected position existence", ok, true)
		test.Expect(
			t,
			"unexpected position",
			pos,
			Position{
				LastProcessedSequence: events[4].GlobalSequence,
				Processed:             true,
				SchemaHash:            h.Registration().Descriptor().SchemaHash,
			},
		)
	})

	t.Run("it isolates failures to each event and projection", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t, 3)
		ctx := test.ContextWithTimeout(t, time.Second)

		other, err := RegisterAsync(f.Registry, balanceDescriptor("other"), balanceProjection(), f.store(t, "other"))
		if err != nil {
			t.Fatal(err)
		}

		events := deposits(f, t, 1, 2, 3, 4)

		res, err := x.ProcessEvents(ctx, events)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected result", res, Result{Events: 5, Succeeded: 9, Failed: 1})

		got, err := h.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}
		test.Expect(t, "unexpected balance", got.Value.Amount, 7)

		got, err = other.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}
		test.Expect(t, "unexpected balance", got.Value.Amount, 10)

		pos, _, err := f.Positions.LoadPosition(ctx, "balances")
		if err != nil {
			t.Fatal(err)
		}
		test.Expect(t, "unexpected position", pos.LastProcessedSequence, events[4].GlobalSequence)

		dead, err := f.DeadLetters.DeadLetters(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if len(dead) != 1 {
			t.Fatalf("unexpected dead letter count: got %d, want 1", len(dead))
		}

		test.Expect(
			t,
			"unexpected dead letter",
			[]any{dead[0].Projection, dead[0].EventID, dead[0].GlobalSequence},
			[]any{"balances", events[3].EventID, events[3].GlobalSequence},
		)
	})

	t.Run("it counts an unresolved event as a failure of every async projection", func(t *testing.T) {
		t.Parallel()

		f, x, _ := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)

		if _, err := RegisterAsync(f.Registry, NewDescriptor("unrelated", "<other>"), balanceProjection(), f.store(t, "unrelated")); err != nil {
			t.Fatal(err)
		}

		events := deposits(f, t)
		events[0].Event = nil

		res, err := x.ProcessEvents(ctx, events)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected result", res, Result{Events: 1, Failed: 2})

		if _, ok, _ := f.Positions.LoadPosition(ctx, "balances"); ok {
			t.Fatal("did not expect the position to be advanced")
		}
	})

	t.Run("it skips events that have already been applied", func(t *testing.T) {
		t.Parallel()

		f, x, h := setup(t)
		ctx := test.ContextWithTimeout(t, time.Second)
		events := deposits(f, t, 10)

		if _, err := x.ProcessEvents(ctx, events); err != nil {
			t.Fatal(err)
		}

		res, err := x.ProcessEvents(ctx, events)
		if err != nil {
			t.Fatal(err)
		}

		test.Expect(t, "unexpected result", res, Result{Events: 2, Skipped: 2})

		got, err := h.Query(ctx, "acct-1")
		if err != nil {
			t.Fatal(err)
		}
		test.Expect(t, "unexpected balance", got.Value.Amount, 10)
	})

	t.Run("it returns an error if the context is canceled", func(t *testing.T) {
		t.Parallel()

		f, x, _ := setup(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := x.ProcessEvents(ctx, deposits(f, t))
		test.ExpectErrorIs(t, err, context.Canceled)
	})
}
