package projection_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/dogmatiq/ledger/marshaling"
	"github.com/dogmatiq/ledger/persistence/driver/memory"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
	. "github.com/dogmatiq/ledger/projection"
	"github.com/google/uuid"
)

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

// balanceProjection returns a projection of account balances. Deposits of
// the given amounts fail to apply.
func balanceProjection(poison ...int64) Funcs[string, balance] {
	return Funcs[string, balance]{
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
				for _, p := range poison {
					if ev.Amount == p {
						return m, fmt.Errorf("poisoned deposit of %d", p)
					}
				}
				m.Amount += ev.Amount
			}
			return m, nil
		},
	}
}

func balanceDescriptor(name string) Descriptor {
	return NewDescriptor(name, "account.opened", "funds.deposited")
}

type fixture struct {
	Events      *memory.EventStore
	KV          *memory.KeyValueStore
	Marshaler   *marshaling.Marshaler
	Registry    *Registry
	Positions   *KeyspacePositionStore
	DeadLetters *KeyspaceDeadLetters
	Loader      *DeserializingLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := &marshaling.Marshaler{}
	marshaling.Register[accountOpened](m, "account.opened")
	marshaling.Register[fundsDeposited](m, "funds.deposited")

	f := &fixture{
		Events:    &memory.EventStore{},
		KV:        &memory.KeyValueStore{},
		Marshaler: m,
		Registry:  &Registry{},
	}

	f.Positions = &KeyspacePositionStore{Keyspace: f.keyspace(t, "positions")}
	f.DeadLetters = &KeyspaceDeadLetters{Keyspace: f.keyspace(t, "dead-letters")}
	f.Loader = &DeserializingLoader{Reader: f.Events, Deserializer: m}

	return f
}

func (f *fixture) keyspace(t *testing.T, name string) kv.Keyspace {
	t.Helper()

	ks, err := f.KV.Open(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		ks.Close()
	})

	return ks
}

func (f *fixture) store(t *testing.T, name string) *KeyspaceStore[string, balance] {
	return &KeyspaceStore[string, balance]{Keyspace: f.keyspace(t, "read-model/"+name)}
}

// append persists domain events to a stream and returns them as stored,
// with their domain event handles attached.
func (f *fixture) append(
	t *testing.T,
	id eventstore.StreamID,
	events ...any,
) []eventstore.StoredEvent {
	t.Helper()

	ctx := context.Background()

	current, err := f.Events.LoadStream(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	var pending []eventstore.StoredEvent
	for _, ev := range events {
		eventType, data, err := f.Marshaler.Serialize(ev)
		if err != nil {
			t.Fatal(err)
		}

		pending = append(pending, eventstore.StoredEvent{
			EventID:   eventstore.EventID(uuid.NewString()),
			EventType: eventType,
			Data:      data,
		})
	}

	stored, err := f.Events.AppendEvents(
		ctx,
		id,
		eventstore.ForVersion(eventstore.LastVersion(current)),
		pending,
	)
	if err != nil {
		t.Fatal(err)
	}

	for i := range stored {
		stored[i].Event = events[i]
	}

	return stored
}
