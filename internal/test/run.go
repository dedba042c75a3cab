package test

import (
	"context"
	"errors"
	"testing"
	"time"
)

// shutdownTimeout is how long a background task may take to return once its
// context is canceled.
const shutdownTimeout = 10 * time.Second

// errStopped is the cause used to cancel a task's context when it is stopped
// explicitly.
var errStopped = errors.New("task stopped")

// Task is a function running in its own goroutine for the duration of a test.
type Task struct {
	t      *testing.T
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

// RunInBackground starts fn in its own goroutine. Its context is canceled when
// [Task.StopAndWait] is called or the test ends.
//
// The test fails if fn does not return within a reasonable time of its
// context being canceled.
func RunInBackground(
	t *testing.T,
	fn func(ctx context.Context) error,
) *Task {
	t.Helper()

	ctx, cancel := context.WithCancelCause(context.Background())

	task := &Task{
		t:      t,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)

		err := fn(ctx)
		if errors.Is(err, context.Canceled) && context.Cause(ctx) == errStopped {
			err = errStopped
		}

		task.err = err
	}()

	t.Cleanup(func() {
		t.Helper()

		cancel(nil)

		select {
		case <-task.done:
		case <-time.After(shutdownTimeout):
			t.Errorf("background task did not return within %s of its context being canceled", shutdownTimeout)
		}
	})

	return task
}

// StopAndWait cancels the task's context and waits for it to return.
//
// The test fails if the task returns any error other than one caused by the
// cancelation.
func (t *Task) StopAndWait() {
	t.t.Helper()

	t.cancel(errStopped)

	select {
	case <-t.done:
		if t.err != errStopped {
			t.t.Fatalf("background task returned an unexpected error: %v", t.err)
		}
	case <-time.After(shutdownTimeout):
		t.t.Fatalf("background task did not return within %s of being stopped", shutdownTimeout)
	}
}

// Done returns a channel that is closed when the task returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
