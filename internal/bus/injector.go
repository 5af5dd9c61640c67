package bus

import (
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
)

// Injector is a Simulator that performs the platform injection and
// feeds the matching simulated event back through the bus. On targets
// where the OS hook reports synthetic input with a distinguishable
// device id the feedback arrives twice; the capture producers drop the
// hook's copy there. On targets without that signal this is the only
// path by which injected input reaches system space.
type Injector struct {
	bus      *Bus
	platform state.Simulator
}

// NewInjector wraps the platform simulator. A nil platform means
// feedback only, no real injection, which is what tests want.
func NewInjector(b *Bus, platform state.Simulator) *Injector {
	if platform == nil {
		platform = state.NopSimulator{}
	}
	return &Injector{bus: b, platform: platform}
}

func (in *Injector) submit(p input.Payload) {
	in.bus.Submit(input.DeviceEvent{Time: time.Now(), Payload: p, Simulated: true})
}

func (in *Injector) PressKey(key input.Keycode) {
	in.platform.PressKey(key)
	in.submit(input.KeyboardInput{Key: key, Pressed: true})
}

func (in *Injector) ReleaseKey(key input.Keycode) {
	in.platform.ReleaseKey(key)
	in.submit(input.KeyboardInput{Key: key, Pressed: false})
}

func (in *Injector) PressButton(button input.Button) {
	in.platform.PressButton(button)
	in.submit(input.MouseButton{Button: button, Pressed: true})
}

func (in *Injector) ReleaseButton(button input.Button) {
	in.platform.ReleaseButton(button)
	in.submit(input.MouseButton{Button: button, Pressed: false})
}

func (in *Injector) MoveAbsolute(pos input.Vec2) {
	in.platform.MoveAbsolute(pos)
	in.submit(input.MouseMove{Pos: pos})
}

func (in *Injector) MoveRelative(delta input.Vec2) {
	in.platform.MoveRelative(delta)
	in.submit(input.MouseDelta{Delta: delta})
}

func (in *Injector) Scroll(delta input.Vec2) {
	in.platform.Scroll(delta)
	in.submit(input.MouseWheel{Delta: delta})
}
