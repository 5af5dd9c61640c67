package state

import (
	"sync"

	"github.com/roach88/tracecap/internal/input"
)

// Simulator injects synthetic input at the OS level. Injection is
// inherently platform-specific; the aggregator and the inference
// coordinator depend only on this interface.
//
// Implemented by the per-OS backends (production) and Recorder (tests).
type Simulator interface {
	PressKey(key input.Keycode)
	ReleaseKey(key input.Keycode)
	PressButton(button input.Button)
	ReleaseButton(button input.Button)
	MoveAbsolute(pos input.Vec2)
	MoveRelative(delta input.Vec2)
	Scroll(delta input.Vec2)
}

// NopSimulator discards all injections. Used when the build has no
// injection backend for the target OS.
type NopSimulator struct{}

func (NopSimulator) PressKey(input.Keycode)     {}
func (NopSimulator) ReleaseKey(input.Keycode)   {}
func (NopSimulator) PressButton(input.Button)   {}
func (NopSimulator) ReleaseButton(input.Button) {}
func (NopSimulator) MoveAbsolute(input.Vec2)    {}
func (NopSimulator) MoveRelative(input.Vec2)    {}
func (NopSimulator) Scroll(input.Vec2)          {}

// SimOp is one recorded injection.
type SimOp struct {
	Op      string // "key", "button", "move_abs", "move_rel", "scroll"
	Key     input.Keycode
	Button  input.Button
	Pressed bool
	Vec     input.Vec2
}

// Recorder is a Simulator that records every injection instead of
// performing it. Thread-safe.
type Recorder struct {
	mu  sync.Mutex
	ops []SimOp
}

// Ops returns a copy of the recorded injections in order.
func (r *Recorder) Ops() []SimOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SimOp, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *Recorder) record(op SimOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *Recorder) PressKey(key input.Keycode) {
	r.record(SimOp{Op: "key", Key: key, Pressed: true})
}

func (r *Recorder) ReleaseKey(key input.Keycode) {
	r.record(SimOp{Op: "key", Key: key, Pressed: false})
}

func (r *Recorder) PressButton(button input.Button) {
	r.record(SimOp{Op: "button", Button: button, Pressed: true})
}

func (r *Recorder) ReleaseButton(button input.Button) {
	r.record(SimOp{Op: "button", Button: button, Pressed: false})
}

func (r *Recorder) MoveAbsolute(pos input.Vec2) {
	r.record(SimOp{Op: "move_abs", Vec: pos})
}

func (r *Recorder) MoveRelative(delta input.Vec2) {
	r.record(SimOp{Op: "move_rel", Vec: delta})
}

func (r *Recorder) Scroll(delta input.Vec2) {
	r.record(SimOp{Op: "scroll", Vec: delta})
}
