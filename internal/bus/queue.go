package bus

import (
	"sync"

	"github.com/roach88/tracecap/internal/input"
)

// eventQueue is a thread-safe unbounded FIFO for device events.
//
// Unbounded on purpose: producers are OS hook callbacks and must never
// block, no matter how far behind the consumer falls. Thread-safety
// covers any number of producers; the bus's consumer goroutine is the
// single dequeuer.
//
// A buffered size-1 signal channel coalesces wakeups so the consumer
// can wait without polling.
type eventQueue struct {
	mu     sync.Mutex
	events []input.DeviceEvent
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]input.DeviceEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Safe from any goroutine, never blocks.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(ev input.DeviceEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, ev)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the front event, blocking until one is
// available or the queue is closed and drained.
func (q *eventQueue) Dequeue() (input.DeviceEvent, bool) {
	for {
		if ev, ok := q.tryDequeue(); ok {
			return ev, true
		}

		q.mu.Lock()
		if q.closed && len(q.events) == 0 {
			q.mu.Unlock()
			return input.DeviceEvent{}, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

func (q *eventQueue) tryDequeue() (input.DeviceEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return input.DeviceEvent{}, false
	}

	ev := q.events[0]

	// Nil the slot so the payload is collectable while the backing
	// array lives on.
	q.events[0] = input.DeviceEvent{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return ev, true
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close marks the queue closed and wakes every blocked waiter. Events
// already queued still drain.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
