package input

import (
	"fmt"
	"time"
)

// Vec2 is an integer 2D vector. Mouse positions are absolute screen
// pixels, deltas and scroll amounts are relative pixels/lines.
type Vec2 struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Add returns the component-wise sum of v and o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// IsZero reports whether both components are zero.
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d, %d)", v.X, v.Y)
}

// DeviceEvent is one raw input notification. Immutable once created;
// the bus owns it until it has been copied into the timeline and
// dispatched to listeners.
//
// Simulated marks events injected by this process itself (model-driven
// or playback) rather than produced by a physical device.
type DeviceEvent struct {
	Time      time.Time
	Payload   Payload
	Simulated bool
}

// Payload is the closed set of event variants carried by a DeviceEvent.
type Payload interface {
	payload()
}

// MouseMove carries an absolute cursor position.
type MouseMove struct {
	Pos Vec2
}

// MouseDelta carries a relative cursor movement.
type MouseDelta struct {
	Delta Vec2
}

// MouseWheel carries a scroll movement.
type MouseWheel struct {
	Delta Vec2
}

// MouseButton carries a button press or release.
type MouseButton struct {
	Button  Button
	Pressed bool
}

// KeyboardInput carries a key press or release.
type KeyboardInput struct {
	Key     Keycode
	Pressed bool
}

func (MouseMove) payload()     {}
func (MouseDelta) payload()    {}
func (MouseWheel) payload()    {}
func (MouseButton) payload()   {}
func (KeyboardInput) payload() {}
func (GamepadAction) payload() {}
