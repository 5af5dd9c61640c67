package bus

import (
	"sync"

	"github.com/roach88/tracecap/internal/input"
)

// Listener observes the raw event stream. The handle passed to OnEvent
// is the one Register returned, so a listener can remove itself.
type Listener interface {
	OnEvent(ev input.DeviceEvent, handle uint64)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev input.DeviceEvent, handle uint64)

func (f ListenerFunc) OnEvent(ev input.DeviceEvent, handle uint64) {
	f(ev, handle)
}

// Registry fans the event stream out to registered listeners on a
// dedicated goroutine, in bus serialization order. Registration and
// removal are the only two operations a consumer needs.
type Registry struct {
	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64

	queue *eventQueue
	done  chan struct{}
}

// NewRegistry creates a registry and starts its dispatch goroutine.
func NewRegistry() *Registry {
	r := &Registry{
		listeners: make(map[uint64]Listener),
		queue:     newEventQueue(),
		done:      make(chan struct{}),
	}
	go r.dispatch()
	return r
}

// Register adds a listener and returns its removal handle.
func (r *Registry) Register(l Listener) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return id
}

// Remove drops the listener with the given handle. Removing an unknown
// handle is a no-op.
func (r *Registry) Remove(handle uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, handle)
}

// Dispatch queues the event for delivery. Never blocks; delivery order
// matches call order.
func (r *Registry) Dispatch(ev input.DeviceEvent) {
	r.queue.Enqueue(ev)
}

// Close stops the dispatch goroutine after the queued events drain.
func (r *Registry) Close() {
	r.queue.Close()
	<-r.done
}

func (r *Registry) dispatch() {
	defer close(r.done)
	for {
		ev, ok := r.queue.Dequeue()
		if !ok {
			return
		}
		r.mu.Lock()
		targets := make(map[uint64]Listener, len(r.listeners))
		for id, l := range r.listeners {
			targets[id] = l
		}
		r.mu.Unlock()

		for id, l := range targets {
			l.OnEvent(ev, id)
		}
	}
}
