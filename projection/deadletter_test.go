package projection_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dogmatiq/ledger/internal/test"
	. "github.com/dogmatiq/ledger/projection"
)

func TestKeyspaceDeadLetters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := test.ContextWithTimeout(t, time.Second)

	dl := func(projection string, seq uint64) DeadLetter {
		return DeadLetter{
			Projection:     projection,
			EventID:        "<event>",
			StreamID:       "<stream>",
			EventType:      "<type>",
			GlobalSequence: seq,
			Error:          errors.New("<error>").Error(),
			RecordedAt:     time.Now().UTC(),
		}
	}

	for _, d := range []DeadLetter{dl("b", 2), dl("a", 5), dl("a", 2)} {
		if err := f.DeadLetters.RecordDeadLetter(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.DeadLetters.DeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Records for the same projection and event replace each other.
	test.Expect(
		t,
		"unexpected dead letters",
		got,
		[]DeadLetter{dl("a", 2), dl("b", 2)},
	)

	if err := f.DeadLetters.Remove(ctx, "a", "<event>"); err != nil {
		t.Fatal(err)
	}

	got, err = f.DeadLetters.DeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}

	test.Expect(t, "unexpected dead letters", got, []DeadLetter{dl("b", 2)})
}
