package projection_test

import (
	"testing"
	"time"

	"github.com/dogmatiq/ledger/internal/test"
)

func TestKeyspaceStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := test.ContextWithTimeout(t, time.Second)
	s := f.store(t, "balances")

	for _, k := range []string{"a", "b"} {
		if err := s.Save(ctx, k, balance{Owner: k, Amount: 1}); err != nil {
			t.Fatal(err)
		}
	}

	got, ok, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	test.Expect(t, "unexpected existence", ok, true)
	test.Expect(t, "unexpected read model", got, balance{Owner: "a", Amount: 1})

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := s.Load(ctx, "a"); ok {
		t.Fatal("expected the read model to be deleted")
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := s.Load(ctx, "b"); ok {
		t.Fatal("expected the store to be cleared")
	}
}
