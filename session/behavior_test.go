package session_test

import (
	"testing"

	"github.com/dogmatiq/ledger/internal/test"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	. "github.com/dogmatiq/ledger/session"
)

func TestBehaviors(t *testing.T) {
	t.Parallel()

	t.Run("func Factory()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns false if no factory is registered", func(t *testing.T) {
			t.Parallel()

			b := &Behaviors{}

			if _, ok := b.Factory(AggregateType[*account](), "account.opened"); ok {
				t.Fatal("did not expect a factory")
			}
		})

		t.Run("it returns an error if the event is of the wrong type", func(t *testing.T) {
			t.Parallel()

			b := newBehaviors()

			fn, ok := b.Factory(AggregateType[*account](), "account.opened")
			if !ok {
				t.Fatal("expected a factory")
			}

			if _, err := fn("acct-1", fundsDeposited{1}); err == nil {
				t.Fatal("expected an error")
			}
		})
	})

	t.Run("func Applier()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns an error if the aggregate is of the wrong type", func(t *testing.T) {
			t.Parallel()

			b := newBehaviors()

			fn, ok := b.Applier(AggregateType[*account](), "funds.deposited")
			if !ok {
				t.Fatal("expected an applier")
			}

			if _, err := fn("<not an account>", fundsDeposited{1}); err == nil {
				t.Fatal("expected an error")
			}

			got, err := fn(&account{}, fundsDeposited{3})
			if err != nil {
				t.Fatal(err)
			}

			test.Expect[any](t, "unexpected aggregate", got, &account{Balance: 3})
		})
	})

	t.Run("func RegisterFactory()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if the factory is already registered", func(t *testing.T) {
			t.Parallel()

			b := newBehaviors()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			OnCreate(
				b,
				"account.opened",
				func(eventstore.StreamID, accountOpened) (*account, error) {
					return nil, nil
				},
			)
		})
	})

	t.Run("func RegisterApplier()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if the applier is already registered", func(t *testing.T) {
			t.Parallel()

			b := newBehaviors()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			OnApply(
				b,
				"funds.deposited",
				func(a *account, _ fundsDeposited) (*account, error) {
					return a, nil
				},
			)
		})
	})
}
