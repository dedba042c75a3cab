package test

import (
	"context"
	"time"
)

// TestingT is the subset of [testing.TB] needed to tie resources to the
// lifetime of a test.
type TestingT interface {
	Helper()
	Cleanup(func())
}

// ContextWithTimeout returns a context that is canceled after the given
// timeout, or when the test completes, whichever happens first.
func ContextWithTimeout(t TestingT, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}
