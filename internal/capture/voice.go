package capture

import (
	"sync"
	"time"

	"github.com/roach88/tracecap/internal/bus"
	"github.com/roach88/tracecap/internal/input"
)

// VoiceEvent is one push-to-talk transition: the speaker key went down
// or came up at the given instant.
type VoiceEvent struct {
	Speaking bool
	Time     time.Time
}

// VoiceListener watches the raw event stream for the designated
// push-to-talk key and records its edge transitions. Repeat events
// from key auto-repeat are collapsed: only actual edges are kept.
type VoiceListener struct {
	registry *bus.Registry
	handle   uint64

	mu      sync.Mutex
	pressed bool
	events  []VoiceEvent
}

// ListenVoice registers a listener for the given key on the registry.
func ListenVoice(registry *bus.Registry, key input.Keycode) *VoiceListener {
	v := &VoiceListener{registry: registry}
	v.handle = registry.Register(bus.ListenerFunc(func(ev input.DeviceEvent, _ uint64) {
		kb, ok := ev.Payload.(input.KeyboardInput)
		if !ok || kb.Key != key {
			return
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if kb.Pressed == v.pressed {
			return
		}
		v.pressed = kb.Pressed
		v.events = append(v.events, VoiceEvent{Speaking: kb.Pressed, Time: ev.Time})
	}))
	return v
}

// Stop removes the listener and returns the recorded transitions in
// arrival order.
func (v *VoiceListener) Stop() []VoiceEvent {
	v.registry.Remove(v.handle)
	v.mu.Lock()
	defer v.mu.Unlock()
	events := v.events
	v.events = nil
	return events
}
