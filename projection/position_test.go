package projection_test

import (
	"testing"
	"time"

	"github.com/dogmatiq/ledger/internal/test"
	. "github.com/dogmatiq/ledger/projection"
)

func TestKeyspacePositionStore(t *testing.T) {
	t.Parallel()

	t.Run("func LoadPosition()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns false if no position has been saved", func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := test.ContextWithTimeout(t, time.Second)

			_, ok, err := f.Positions.LoadPosition(ctx, "<name>")
			if err != nil {
				t.Fatal(err)
			}

			if ok {
				t.Fatal("did not expect a position")
			}
		})

		t.Run("it returns the saved position", func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := test.ContextWithTimeout(t, time.Second)
			want := Position{LastProcessedSequence: 42, Processed: true, SchemaHash: "<hash>"}

			if err := f.Positions.SavePosition(ctx, "<name>", want); err != nil {
				t.Fatal(err)
			}

			got, ok, err := f.Positions.LoadPosition(ctx, "<name>")
			if err != nil {
				t.Fatal(err)
			}

			test.Expect(t, "unexpected position existence", ok, true)
			test.Expect(t, "unexpected position", got, want)
		})
	})

	t.Run("func ResetPosition()", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := test.ContextWithTimeout(t, time.Second)

		if err := f.Positions.SavePosition(ctx, "<name>", Position{LastProcessedSequence: 1, Processed: true}); err != nil {
			t.Fatal(err)
		}

		if err := f.Positions.ResetPosition(ctx, "<name>"); err != nil {
			t.Fatal(err)
		}

		if _, ok, _ := f.Positions.LoadPosition(ctx, "<name>"); ok {
			t.Fatal("did not expect a position")
		}
	})
}

func TestPosition_Next(t *testing.T) {
	t.Parallel()

	test.Expect(t, "unexpected next sequence", Position{}.Next(), 1)
	test.Expect(t, "unexpected next sequence", Position{LastProcessedSequence: 7, Processed: true}.Next(), 8)
}
