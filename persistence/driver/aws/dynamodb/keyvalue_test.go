package dynamodb_test

import (
	"context"
	"testing"
	"time"

	. "github.com/dogmatiq/ledger/persistence/driver/aws/dynamodb"
	"github.com/dogmatiq/ledger/persistence/kv"
)

func TestKeyValueStore(t *testing.T) {
	client := newClient(t)
	table := "ledger_kv"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	if err := CreateKeyValueStoreTable(ctx, client, table); err != nil {
		cancel()
		t.Fatal(err)
	}

	t.Cleanup(func() {
		defer cancel()

		if err := deleteTable(ctx, client, table); err != nil {
			t.Error(err)
		}
	})

	kv.RunTests(
		t,
		func(t *testing.T) kv.Store {
			return &KeyValueStore{
				Client: client,
				Table:  table,
			}
		},
	)
}
