package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	. "github.com/dogmatiq/ledger/persistence/driver/sqlite"
	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
)

func TestEventStore(t *testing.T) {
	eventstore.RunTests(
		t,
		func(t *testing.T) eventstore.EventStore {
			return &EventStore{
				DB: openDB(t),
			}
		},
	)
}

func TestKeyValueStore(t *testing.T) {
	kv.RunTests(
		t,
		func(t *testing.T) kv.Store {
			return &KeyValueStore{
				DB: openDB(t),
			}
		},
	)
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Error(err)
		}
	})

	return db
}
