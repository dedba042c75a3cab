package marshaling_test

import (
	"errors"
	"testing"

	"github.com/dogmatiq/ledger/internal/test"
	. "github.com/dogmatiq/ledger/marshaling"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type accountOpened struct {
	Owner string `json:"owner"`
}

type fundsDeposited struct {
	Amount int64 `json:"amount"`
}

func newMarshaler() *Marshaler {
	m := &Marshaler{}
	Register[accountOpened](m, "account-opened")
	Register[*fundsDeposited](m, "funds-deposited")
	Register[*wrapperspb.StringValue](m, "note-added")
	return m
}

func TestMarshaler(t *testing.T) {
	t.Parallel()

	t.Run("func Serialize()", func(t *testing.T) {
		t.Parallel()

		t.Run("it round-trips JSON encoded value types", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			typ, data, err := m.Serialize(accountOpened{Owner: "<owner>"})
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected event type", typ, "account-opened")
			test.Expect(t, "unexpected data", string(data), `{"owner":"<owner>"}`)

			ev, err := m.Deserialize(typ, data, nil)
			if err != nil {
				t.Fatal(err)
			}

			test.Expect[any](t, "unexpected event", ev, accountOpened{Owner: "<owner>"})
		})

		t.Run("it round-trips JSON encoded pointer types", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			typ, data, err := m.Serialize(&fundsDeposited{Amount: 100})
			if err != nil {
				t.Fatal(err)
			}

			ev, err := m.Deserialize(typ, data, nil)
			if err != nil {
				t.Fatal(err)
			}

			test.Expect[any](t, "unexpected event", ev, &fundsDeposited{Amount: 100})
		})

		t.Run("it round-trips protocol buffers messages", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			typ, data, err := m.Serialize(wrapperspb.String("<note>"))
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected event type", typ, "note-added")

			ev, err := m.Deserialize(typ, data, map[string]string{"<key>": "<value>"})
			if err != nil {
				t.Fatal(err)
			}

			test.Expect[any](t, "unexpected event", ev, wrapperspb.String("<note>"))
		})

		t.Run("it returns an error if the type is not registered", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			_, _, err := m.Serialize(fundsDeposited{})
			if !errors.Is(err, ErrUnknownEventType) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	})

	t.Run("func Deserialize()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns an error if the type is not registered", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			_, err := m.Deserialize("<unknown>", nil, nil)
			if !errors.Is(err, ErrUnknownEventType) {
				t.Fatalf("unexpected error: %v", err)
			}
		})

		t.Run("it returns an error if the data is malformed", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			if _, err := m.Deserialize("account-opened", []byte("{"), nil); err == nil {
				t.Fatal("expected an error")
			}
		})
	})

	t.Run("func Register()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if the name is already registered", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			Register[fundsDeposited](m, "account-opened")
		})

		t.Run("it panics if the type is already registered", func(t *testing.T) {
			t.Parallel()

			m := newMarshaler()

			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()

			Register[accountOpened](m, "<other>")
		})
	})
}
