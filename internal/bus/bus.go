// Package bus merges raw input notifications from every producer
// thread into one ordered stream and fans each event out to the
// timeline, the listener registry, and the state aggregator.
//
// The bus is the system's serialization point: a dedicated consumer
// goroutine pops events strictly in submission order, so every
// downstream observer sees the same order the aggregator saw, even
// though the bus is asynchronous relative to producers.
package bus

import (
	"log/slog"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
	"github.com/roach88/tracecap/internal/timeline"
)

// Bus is the device event bus. Construct exactly one per process with
// Start; producers call Submit from any goroutine.
type Bus struct {
	queue     *eventQueue
	state     *state.InputState
	tl        *timeline.Timeline
	registry  *Registry
	gamepads  *input.GamepadMirror
	inference bool
	logger    *slog.Logger
	done      chan struct{}
}

// Options configures a Bus.
type Options struct {
	State    *state.InputState
	Timeline *timeline.Timeline
	Registry *Registry
	Gamepads *input.GamepadMirror
	// WithInference keeps the Simulated flag on submitted events. When
	// the build carries no inference support the flag is forced false,
	// collapsing the system/user split to user space only.
	WithInference bool
	Logger        *slog.Logger
}

// Start constructs the bus and launches its consumer goroutine. One
// bus per process: the single serialization order the rest of the
// system depends on only exists with exactly one consumer. The
// process-level single-init guard lives in the session wiring.
func Start(opts Options) *Bus {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Gamepads == nil {
		opts.Gamepads = input.NewGamepadMirror()
	}
	b := &Bus{
		queue:     newEventQueue(),
		state:     opts.State,
		tl:        opts.Timeline,
		registry:  opts.Registry,
		gamepads:  opts.Gamepads,
		inference: opts.WithInference,
		logger:    opts.Logger,
		done:      make(chan struct{}),
	}
	go b.consume()
	return b
}

// Submit hands an event to the bus. Non-blocking, safe from any
// producer thread. Keys on the skip list are dropped here, before the
// event exists anywhere downstream. A closed bus drops the event with
// a log line.
func (b *Bus) Submit(ev input.DeviceEvent) {
	if kb, ok := ev.Payload.(input.KeyboardInput); ok && input.Skippable(kb.Key) {
		return
	}
	if !b.queue.Enqueue(ev) {
		b.logger.Error("event bus closed, dropping event", "payload", ev.Payload)
	}
}

// Registry returns the listener registry fed by this bus.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// Gamepads returns the controller state mirror fed by this bus.
func (b *Bus) Gamepads() *input.GamepadMirror {
	return b.gamepads
}

// Close stops intake, drains the queue, then stops the fan-out.
func (b *Bus) Close() {
	b.queue.Close()
	<-b.done
	b.registry.Close()
}

// consume is the single-consumer loop. For each event, in order:
// timeline copy, listener fan-out, aggregator application. All three
// happen under the aggregator lock so a frame snapshot can never split
// an event.
func (b *Bus) consume() {
	defer close(b.done)
	for {
		ev, ok := b.queue.Dequeue()
		if !ok {
			return
		}
		if !b.inference {
			ev.Simulated = false
		}
		if pad, isPad := ev.Payload.(input.GamepadAction); isPad {
			b.gamepads.Apply(pad)
		}
		b.state.Ingest(ev, b.tl, b.registry.Dispatch)
	}
}
