// Package timeline holds the append-only raw event buffers for a
// recording session.
//
// Two buffers grow in lockstep: the per-frame buffer is drained once
// per video frame by the snapshot builder, the full-session buffer is
// drained only when the session ends. Events appear in both buffers in
// bus serialization order, which is the single ordering the rest of
// the system reasons about; the per-event wall-clock timestamp is
// recorded but ingestion order wins.
package timeline

import (
	"sync"
	"time"

	"github.com/roach88/tracecap/internal/input"
)

// Timeline is the per-session event log. Safe for concurrent use.
type Timeline struct {
	mu         sync.Mutex
	start      time.Time
	events     []input.DeviceEvent
	fullEvents []input.DeviceEvent
}

// New returns an empty timeline. Start must be called before the first
// recording.
func New() *Timeline {
	return &Timeline{start: time.Now()}
}

// Start clears both buffers and stamps a new session start time,
// which it returns. Called once at the beginning of every recording.
func (t *Timeline) Start() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
	t.events = nil
	t.fullEvents = nil
	return t.start
}

// StartTime returns the current session start instant.
func (t *Timeline) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start
}

// Push appends the event to both buffers.
func (t *Timeline) Push(ev input.DeviceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	t.fullEvents = append(t.fullEvents, ev)
}

// DrainFrame empties and returns the per-frame buffer. The
// full-session buffer is untouched.
func (t *Timeline) DrainFrame() []input.DeviceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.events
	t.events = nil
	return events
}

// DrainFull empties and returns the full-session buffer.
func (t *Timeline) DrainFull() []input.DeviceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.fullEvents
	t.fullEvents = nil
	return events
}
