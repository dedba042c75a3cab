package memory_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/dogmatiq/ledger/persistence/driver/memory"
	"github.com/dogmatiq/ledger/persistence/kv"
)

func TestKeyValueStore(t *testing.T) {
	kv.RunTests(
		t,
		func(t *testing.T) kv.Store {
			return &KeyValueStore{}
		},
	)

	t.Run("it does not modify the keyspace if BeforeSet fails", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		want := errors.New("<error>")

		store := &KeyValueStore{
			BeforeSet: func(keyspace string, k, v []byte) error {
				if keyspace == "<keyspace>" && string(k) == "<key>" {
					return want
				}
				return nil
			},
		}

		ks, err := store.Open(ctx, "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		if err := ks.Set(ctx, []byte("<key>"), []byte("<value>")); err != want {
			t.Fatalf("unexpected error: got %v, want %v", err, want)
		}

		if ok, err := ks.Has(ctx, []byte("<key>")); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("expected the failed set to have no effect")
		}

		if err := ks.Set(ctx, []byte("<other>"), []byte("<value>")); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("it ranges over keys in order", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := &KeyValueStore{}

		ks, err := store.Open(ctx, "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		for _, k := range []string{"c", "a", "b"} {
			if err := ks.Set(ctx, []byte(k), []byte("<value>")); err != nil {
				t.Fatal(err)
			}
		}

		keys, err := kv.Keys(ctx, ks)
		if err != nil {
			t.Fatal(err)
		}

		var got string
		for _, k := range keys {
			got += string(k)
		}

		if got != "abc" {
			t.Fatalf("unexpected key order: got %q, want %q", got, "abc")
		}
	})

	t.Run("it returns an error when a closed keyspace is used", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := &KeyValueStore{}

		ks, err := store.Open(ctx, "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}

		if err := ks.Close(); err != nil {
			t.Fatal(err)
		}

		if _, err := ks.Get(ctx, []byte("<key>")); err == nil {
			t.Fatal("expected an error")
		}

		if err := ks.Close(); err == nil {
			t.Fatal("expected an error")
		}
	})
}
