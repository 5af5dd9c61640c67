// Package lagchan provides a single-slot, most-recent-wins handoff
// channel.
//
// This is deliberate backpressure policy for the capture pipeline: a
// sender must never block waiting for a slow network consumer, so at
// most one stale item is ever held and a newer item unconditionally
// replaces it. The receiver side supports a single blocking waiter.
package lagchan

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Recv when the channel is closed with no
// pending item.
var ErrClosed = errors.New("lagchan: closed")

// New creates a connected sender/receiver pair.
func New[T any]() (*Sender[T], *Receiver[T]) {
	inner := &channel[T]{}
	inner.wake = make(chan struct{}, 1)
	s := &Sender[T]{inner: inner, senders: new(atomic.Int64)}
	s.senders.Store(1)
	return s, &Receiver[T]{inner: inner}
}

// Sender is the producing half. Clone it to add producers; the channel
// closes when the last sender is dropped.
type Sender[T any] struct {
	inner   *channel[T]
	senders *atomic.Int64
}

// Send places the value in the slot, overwriting any occupant. It
// never blocks. A closed channel rejects the value and returns it back
// with ok=false.
func (s *Sender[T]) Send(value T) (T, bool) {
	return s.inner.set(value)
}

// Clone returns another handle on the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	s.senders.Add(1)
	return &Sender[T]{inner: s.inner, senders: s.senders}
}

// Drop releases this sender handle. The last drop closes the channel
// and wakes a pending receiver.
func (s *Sender[T]) Drop() {
	if s.senders.Add(-1) <= 0 {
		s.inner.close()
	}
}

// Receiver is the consuming half. A single goroutine may block in Recv
// at a time.
type Receiver[T any] struct {
	inner *channel[T]
}

// TryRecv takes the slot occupant without blocking.
func (r *Receiver[T]) TryRecv() (T, bool) {
	return r.inner.take()
}

// Recv blocks until an item is available or the channel closes. Close
// wins over a pending item: once the channel is closed Recv reports
// ErrClosed without draining the slot, matching the shutdown path
// where a stale frame must not be flushed to a dead connection.
func (r *Receiver[T]) Recv() (T, error) {
	for {
		if r.inner.isClosed() {
			var zero T
			return zero, ErrClosed
		}
		if v, ok := r.inner.take(); ok {
			return v, nil
		}
		<-r.inner.wake
	}
}

// Close drops the receiver, closing the channel so senders start
// failing.
func (r *Receiver[T]) Close() {
	r.inner.close()
}

type channel[T any] struct {
	mu       sync.Mutex
	occupied bool
	slot     T
	closed   atomic.Bool
	wake     chan struct{}
}

func (c *channel[T]) set(value T) (T, bool) {
	if c.closed.Load() {
		return value, false
	}
	c.mu.Lock()
	if c.occupied {
		slog.Debug("lag channel already has an item, overwriting")
	}
	c.slot = value
	c.occupied = true
	c.mu.Unlock()
	c.wakeup()
	var zero T
	return zero, true
}

func (c *channel[T]) take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.occupied {
		var zero T
		return zero, false
	}
	v := c.slot
	var zero T
	c.slot = zero
	c.occupied = false
	return v, true
}

func (c *channel[T]) isClosed() bool {
	return c.closed.Load()
}

func (c *channel[T]) close() {
	if c.closed.Swap(true) {
		return
	}
	c.wakeup()
}

func (c *channel[T]) wakeup() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
