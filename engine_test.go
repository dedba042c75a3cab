package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/dogmatiq/ledger"
	"github.com/dogmatiq/ledger/internal/test"
	"github.com/dogmatiq/ledger/marshaling"
	"github.com/dogmatiq/ledger/persistence/driver/memory"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/projection"
	"github.com/dogmatiq/ledger/session"
	"github.com/dogmatiq/spruce"
)

type account struct {
	ID      eventstore.StreamID
	Balance int64
}

type accountOpened struct {
	AccountID string
	Owner     string
}

type fundsDeposited struct {
	AccountID string
	Amount    int64
}

type balance struct {
	Owner  string
	Amount int64
}

func newMarshaler() *marshaling.Marshaler {
	m := &marshaling.Marshaler{}
	marshaling.Register[accountOpened](m, "account.opened")
	marshaling.Register[fundsDeposited](m, "funds.deposited")
	return m
}

func newBehaviors() *session.Behaviors {
	b := &session.Behaviors{}

	session.OnCreate(
		b,
		"account.opened",
		func(id eventstore.StreamID, ev accountOpened) (*account, error) {
			return &account{ID: id}, nil
		},
	)

	session.OnApply(
		b,
		"funds.deposited",
		func(a *account, ev fundsDeposited) (*account, error) {
			a.Balance += ev.Amount
			return a, nil
		},
	)

	return b
}

var balanceProjection = projection.Funcs[string, balance]{
	ExtractKeyFunc: func(event any) (string, error) {
		switch ev := event.(type) {
		case accountOpened:
			return ev.AccountID, nil
		case fundsDeposited:
			return ev.AccountID, nil
		default:
			return "", fmt.Errorf("unexpected event type %T", event)
		}
	},
	ApplyFunc: func(m balance, event any) (balance, error) {
		switch ev := event.(type) {
		case accountOpened:
			m.Owner = ev.Owner
		case fundsDeposited:
			m.Amount += ev.Amount
		}
		return m, nil
	},
}

// openAccount commits a new account with the given deposits.
func openAccount(
	ctx context.Context,
	t *testing.T,
	e *Engine,
	id string,
	deposits ...int64,
) {
	t.Helper()

	s := e.NewSession(newBehaviors())

	if _, err := session.Start[*account](
		s,
		eventstore.StreamID(id),
		accountOpened{AccountID: id, Owner: "owner-" + id},
	); err != nil {
		t.Fatal(err)
	}

	for _, amount := range deposits {
		if err := s.Append(
			eventstore.StreamID(id),
			fundsDeposited{AccountID: id, Amount: amount},
		); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Commit(ctx); err != nil {
		t.Fatal(err)
	}
}

// globalOnly hides every capability of the event store other than appending
// and loading streams.
type globalOnly struct {
	eventstore.EventStore
}

func TestEngine(t *testing.T) {
	setup := func(t *testing.T, options ...EngineOption) *Engine {
		t.Helper()

		e, err := New(
			context.Background(),
			newMarshaler(),
			append(
				[]EngineOption{
					WithEventStore(&memory.EventStore{}),
					WithKeyValueStore(&memory.KeyValueStore{}),
					WithLogger(spruce.NewTestLogger(t)),
				},
				options...,
			)...,
		)
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() {
			if err := e.Close(); err != nil {
				t.Error(err)
			}
		})

		return e
	}

	t.Run("func New()", func(t *testing.T) {
		t.Run("it panics if the serializer is nil", func(t *testing.T) {
			t.Parallel()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			New(context.Background(), nil)
		})

		t.Run("it panics if the event store can not be read in global order", func(t *testing.T) {
			t.Parallel()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			New(
				context.Background(),
				newMarshaler(),
				WithEventStore(globalOnly{&memory.EventStore{}}),
				WithKeyValueStore(&memory.KeyValueStore{}),
			)
		})
	})

	t.Run("func NewSession()", func(t *testing.T) {
		t.Run("it applies inline projections before the commit returns", func(t *testing.T) {
			t.Parallel()

			ctx := test.ContextWithTimeout(t, 5*time.Second)
			e := setup(t)

			h, err := RegisterInline(
				ctx,
				e,
				projection.NewDescriptor("balances", "account.opened", "funds.deposited"),
				balanceProjection,
			)
			if err != nil {
				t.Fatal(err)
			}

			openAccount(ctx, t, e, "acct-1", 100, 50)

			res, err := h.Query(ctx, "acct-1")
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(
				t,
				"unexpected read model",
				res,
				projection.ReadModelResult[balance]{
					Value: balance{Owner: "owner-acct-1", Amount: 150},
					Found: true,
				},
			)
		})
	})

	t.Run("func ProcessBatch()", func(t *testing.T) {
		t.Run("it applies async projections", func(t *testing.T) {
			t.Parallel()

			ctx := test.ContextWithTimeout(t, 5*time.Second)
			e := setup(t)

			h, err := RegisterAsync(
				ctx,
				e,
				projection.NewDescriptor("balances", "account.opened", "funds.deposited"),
				balanceProjection,
			)
			if err != nil {
				t.Fatal(err)
			}

			openAccount(ctx, t, e, "acct-1", 25)

			res, err := h.Query(ctx, "acct-1")
			if err != nil {
				t.Fatal(err)
			}

			if res.Found {
				t.Fatal("did not expect the read model to exist before the batch is processed")
			}

			batch, err := e.ProcessBatch(ctx)
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected event count", batch.Events, 2)
			test.Expect(t, "unexpected success count", batch.Succeeded, 2)
			test.Expect(t, "unexpected cursor", batch.Cursor, uint64(2))

			res, err = h.Query(ctx, "acct-1")
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(
				t,
				"unexpected read model",
				res.Value,
				balance{Owner: "owner-acct-1", Amount: 25},
			)
		})
	})

	t.Run("func Run()", func(t *testing.T) {
		t.Run("it rebuilds new async projections and processes new events", func(t *testing.T) {
			t.Parallel()

			ctx := test.ContextWithTimeout(t, 5*time.Second)
			e := setup(t, WithPollInterval(10*time.Millisecond))

			openAccount(ctx, t, e, "acct-1", 10)

			h, err := RegisterAsync(
				ctx,
				e,
				projection.NewDescriptor("balances", "account.opened", "funds.deposited"),
				balanceProjection,
			)
			if err != nil {
				t.Fatal(err)
			}

			task := test.RunInBackground(t, e.Run)

			openAccount(ctx, t, e, "acct-2", 20, 30)

			for _, want := range []struct {
				ID     string
				Amount int64
			}{
				{"acct-1", 10},
				{"acct-2", 50},
			} {
				for {
					res, err := h.Query(ctx, want.ID)
					if err != nil {
						t.Fatal(err)
					}

					if res.Found && !res.IsStale && res.Value.Amount == want.Amount {
						break
					}

					select {
					case <-ctx.Done():
						t.Fatalf("timed out waiting for the read model of %q", want.ID)
					case <-time.After(5 * time.Millisecond):
					}
				}
			}

			task.StopAndWait()
		})
	})
}
