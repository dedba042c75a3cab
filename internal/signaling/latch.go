package signaling

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latch is a one-shot signal. Once set it remains set.
//
// The zero value is an unset latch.
type Latch struct {
	init sync.Once
	ch   chan struct{}
	set  atomic.Bool
}

// Set sets the latch. It has no effect if the latch is already set.
func (l *Latch) Set() {
	if l.set.CompareAndSwap(false, true) {
		close(l.channel())
	}
}

// IsSet returns true if the latch has been set.
func (l *Latch) IsSet() bool {
	return l.set.Load()
}

// Done returns a channel that is closed when the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.channel()
}

// Wait blocks until the latch is set or ctx is canceled.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.channel():
		return nil
	}
}

func (l *Latch) channel() chan struct{} {
	l.init.Do(func() {
		l.ch = make(chan struct{})
	})
	return l.ch
}
