package signaling

import "sync"

// Doorbell notifies a single waiter that there may be new work to do.
//
// Rings that occur while a previous ring is still pending are coalesced.
type Doorbell struct {
	init sync.Once
	ch   chan struct{}
}

// Ring notifies the waiter, if it has not already been notified.
func (d *Doorbell) Ring() {
	select {
	case d.channel() <- struct{}{}:
	default:
	}
}

// Rung returns a channel that becomes readable when the doorbell is rung. Each
// read consumes a single pending ring.
func (d *Doorbell) Rung() <-chan struct{} {
	return d.channel()
}

func (d *Doorbell) channel() chan struct{} {
	d.init.Do(func() {
		d.ch = make(chan struct{}, 1)
	})
	return d.ch
}
