package test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/protobuf/testing/protocmp"
	"pgregory.net/rapid"
)

// FailerT is the subset of [testing.TB] used by assertions. It is also
// satisfied by [rapid.T], so assertions may be used within property tests.
type FailerT interface {
	Helper()
	Log(...any)
	Fatal(...any)
	Fatalf(string, ...any)
}

var (
	_ FailerT = (testing.TB)(nil)
	_ FailerT = (*rapid.T)(nil)
)

// Expect compares two values and fails the test if they are different.
func Expect[T any](
	t FailerT,
	failMessage string,
	got, want T,
	options ...cmp.Option,
) {
	t.Helper()

	options = append(
		[]cmp.Option{
			protocmp.Transform(),
			cmpopts.EquateEmpty(),
			cmpopts.EquateErrors(),
			cmpopts.EquateApproxTime(time.Millisecond),
		},
		options...,
	)

	if diff := cmp.Diff(want, got, options...); diff != "" {
		t.Log(failMessage)
		t.Fatal(diff)
	}
}

// ExpectErrorIs fails the test if err does not match target according to
// [errors.Is].
func ExpectErrorIs(t FailerT, err, target error) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected an error matching %q, got nil", target)
	}

	if !errors.Is(err, target) {
		t.Fatalf("unexpected error: got %q, want an error matching %q", err, target)
	}
}

// ExpectErrorAs fails the test if err does not contain an error of type E
// according to [errors.As]. It returns the matched error.
func ExpectErrorAs[E error](t FailerT, err error) E {
	t.Helper()

	var target E
	if !errors.As(err, &target) {
		t.Fatalf("unexpected error: got %v, want an error of type %T", err, target)
	}

	return target
}
