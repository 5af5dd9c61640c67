package state

import "sync/atomic"

// Flag is the shared model-control boolean. It is handed by reference
// to the aggregator, the inference coordinator, and the control
// surface.
//
// There is deliberately no plain Set: every transition goes through
// TryTransition so that the human-override toggle stays edge-triggered
// even when several subsystems race on it. A flood of identical
// transition attempts succeeds at most once.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a flag holding the initial value.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.v.Store(initial)
	return f
}

// Get returns the current value.
func (f *Flag) Get() bool {
	return f.v.Load()
}

// TryTransition atomically flips the flag from `from` to `to` and
// reports whether this call performed the flip.
func (f *Flag) TryTransition(from, to bool) bool {
	return f.v.CompareAndSwap(from, to)
}
