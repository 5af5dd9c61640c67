// Package state owns the canonical aggregate of "what is pressed right
// now", split by provenance: user space for physical input, system
// space for input this process injected itself.
//
// All mutation happens on the event bus's single consumer goroutine
// via Ingest; no field ever sees two concurrent writers. Readers
// outside that goroutine take a short-lived snapshot through Sample.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/timeline"
)

// InputState is the single source of truth for currently-pressed
// input, split into user and system space. The two spaces are mutated
// by disjoint code paths keyed off the event's Simulated flag: one
// event instance never touches both.
type InputState struct {
	mu sync.Mutex

	// User space: physically produced input.
	pressedKeys    map[input.Keycode]time.Time
	pressedButtons map[input.Button]struct{}
	mousePos       input.Vec2
	mouseDeltas    []input.Vec2
	scrollDeltas   []input.Vec2

	// System space: input injected by this process.
	simKeys         input.KeySet
	simButtons      map[input.Button]struct{}
	simMousePos     input.Vec2
	simMouseDeltas  []input.Vec2
	simScrollDeltas []input.Vec2

	// Nil outside an inference-enabled recording.
	inferenceRunning *Flag

	reEnableKey input.Keycode
	hotkeys     input.KeySet

	sim      Simulator
	notifier input.Notifier
	logger   *slog.Logger
}

// Options configures an InputState.
type Options struct {
	// ReEnableKey is the designated key that hands control back to the
	// model while inference is paused.
	ReEnableKey input.Keycode
	// Hotkeys are excluded from sampled key sets so that control-surface
	// chords never appear in the annotation.
	Hotkeys input.KeySet
	// Simulator performs OS-level injection for lift operations.
	Simulator Simulator
	Notifier  input.Notifier
	Logger    *slog.Logger
}

// New creates an empty aggregator. Construct exactly one per process
// and share it; the bus consumer is its only writer.
func New(opts Options) *InputState {
	if opts.ReEnableKey == "" {
		opts.ReEnableKey = input.KeyLeftBracket
	}
	if opts.Simulator == nil {
		opts.Simulator = NopSimulator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = input.NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &InputState{
		pressedKeys:    make(map[input.Keycode]time.Time, 10),
		pressedButtons: make(map[input.Button]struct{}, 10),
		simKeys:        make(input.KeySet, 10),
		simButtons:     make(map[input.Button]struct{}, 10),
		reEnableKey:    opts.ReEnableKey,
		hotkeys:        opts.Hotkeys,
		sim:            opts.Simulator,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
	}
}

// SetInferenceFlag attaches (or detaches, with nil) the shared
// model-control flag for the coming recording.
func (s *InputState) SetInferenceFlag(f *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inferenceRunning = f
}

// InferenceFlag returns the attached model-control flag, nil when no
// recording is active or inference is disabled.
func (s *InputState) InferenceFlag() *Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inferenceRunning
}

// Simulator returns the active injection backend.
func (s *InputState) Simulator() Simulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim
}

// SetSimulator swaps the injection backend. Needed because the bus
// feedback injector can only be built once the bus exists, which in
// turn needs this aggregator.
func (s *InputState) SetSimulator(sim Simulator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sim == nil {
		sim = NopSimulator{}
	}
	s.sim = sim
}

// Ingest processes one event on the bus consumer goroutine: the event
// is appended to the timeline, handed to fanout, then applied to the
// aggregate, all under the state lock so a concurrent Sample can never
// observe a half-applied event. Lock order is state-then-timeline,
// matching Sample.
func (s *InputState) Ingest(ev input.DeviceEvent, tl *timeline.Timeline, fanout func(input.DeviceEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl.Push(ev)
	if fanout != nil {
		fanout(ev)
	}
	s.applyLocked(ev)
}

// Apply folds one event into the aggregate without touching the
// timeline. Exposed for the inference coordinator's tests; production
// traffic goes through Ingest.
func (s *InputState) Apply(ev input.DeviceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(ev)
}

func (s *InputState) applyLocked(ev input.DeviceEvent) {
	s.handleInferenceToggle(ev)

	switch p := ev.Payload.(type) {
	case input.MouseButton:
		switch {
		case p.Pressed && ev.Simulated:
			s.simButtons[p.Button] = struct{}{}
		case p.Pressed:
			s.pressedButtons[p.Button] = struct{}{}
		case ev.Simulated:
			delete(s.simButtons, p.Button)
		default:
			delete(s.pressedButtons, p.Button)
		}
	case input.KeyboardInput:
		switch {
		case p.Pressed && ev.Simulated:
			s.simKeys[p.Key] = struct{}{}
		case p.Pressed:
			if _, held := s.pressedKeys[p.Key]; !held {
				s.pressedKeys[p.Key] = ev.Time
			}
		case ev.Simulated:
			delete(s.simKeys, p.Key)
		default:
			if since, held := s.pressedKeys[p.Key]; held {
				delete(s.pressedKeys, p.Key)
				s.logger.Debug("key released",
					"key", p.Key, "held", ev.Time.Sub(since))
			}
		}
	case input.MouseMove:
		if ev.Simulated {
			s.simMousePos = p.Pos
		} else {
			s.mousePos = p.Pos
		}
	case input.MouseWheel:
		if ev.Simulated {
			s.simScrollDeltas = append(s.simScrollDeltas, p.Delta)
		} else {
			s.scrollDeltas = append(s.scrollDeltas, p.Delta)
		}
	case input.MouseDelta:
		if ev.Simulated {
			s.simMouseDeltas = append(s.simMouseDeltas, p.Delta)
		} else {
			s.mouseDeltas = append(s.mouseDeltas, p.Delta)
		}
	case input.GamepadAction:
		// Gamepad state is mirrored outside the aggregator.
	}
}

// handleInferenceToggle implements the user-override policy. Only
// non-simulated press events are examined. Any physical press while
// the model is in control flips the flag off and lifts every
// simulated key; pressing the designated re-enable key while the flag
// is off flips it back on. Both transitions are compare-and-swap so a
// flood of repeated presses cannot re-trigger them.
func (s *InputState) handleInferenceToggle(ev input.DeviceEvent) {
	if ev.Simulated || s.inferenceRunning == nil {
		return
	}

	var press bool
	var key input.Keycode
	switch p := ev.Payload.(type) {
	case input.KeyboardInput:
		press = p.Pressed
		key = p.Key
	case input.MouseButton:
		press = p.Pressed
	default:
		return
	}
	if !press {
		return
	}

	if s.inferenceRunning.TryTransition(true, false) {
		s.logger.Info("stopping model control, user input detected", "event", ev.Payload)
		s.liftSimulatedLocked(true)
		s.notifier.Play(input.CueModelControlStopped)
	} else if key == s.reEnableKey && s.inferenceRunning.TryTransition(false, true) {
		s.logger.Info("starting model control, re-enable key pressed", "key", key)
		s.notifier.Play(input.CueModelControlStarted)
	}
}

// LiftSimulatedKeys releases every key and button currently marked
// simulated. Keys the user is physically holding just drop the mark,
// no release is injected for them. With skipWait the mark is dropped
// immediately even when a release is injected, instead of waiting for
// the release event to come back around through the bus.
func (s *InputState) LiftSimulatedKeys(skipWait bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liftSimulatedLocked(skipWait)
}

func (s *InputState) liftSimulatedLocked(skipWait bool) {
	for key := range s.simKeys {
		if _, held := s.pressedKeys[key]; held {
			delete(s.simKeys, key)
			continue
		}
		if skipWait {
			delete(s.simKeys, key)
		}
		s.sim.ReleaseKey(key)
	}

	for button := range s.simButtons {
		if _, held := s.pressedButtons[button]; held {
			delete(s.simButtons, button)
			continue
		}
		if skipWait {
			delete(s.simButtons, button)
		}
		s.sim.ReleaseButton(button)
	}
}

// Reset clears all accumulated buffers and pressed sets. Called at the
// start of every new recording, never mid-recording.
func (s *InputState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mouseDeltas = nil
	s.scrollDeltas = nil
	s.simMouseDeltas = nil
	s.simScrollDeltas = nil
	s.simMousePos = input.Vec2{}
	clear(s.simKeys)
	clear(s.simButtons)
	clear(s.pressedKeys)
	clear(s.pressedButtons)
}

// SeedPressedKeys replaces the user pressed-key set wholesale. Used by
// the start-of-recording double check to seed keys that were already
// held before any event could be delivered.
func (s *InputState) SeedPressedKeys(keys map[input.Keycode]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressedKeys = keys
	if s.pressedKeys == nil {
		s.pressedKeys = make(map[input.Keycode]time.Time, 10)
	}
}

// UserKeys returns the currently pressed user-space keys, unfiltered.
func (s *InputState) UserKeys() []input.Keycode {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]input.Keycode, 0, len(s.pressedKeys))
	for k := range s.pressedKeys {
		keys = append(keys, k)
	}
	return keys
}

// SystemKeys returns the currently pressed system-space keys.
func (s *InputState) SystemKeys() []input.Keycode {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]input.Keycode, 0, len(s.simKeys))
	for k := range s.simKeys {
		keys = append(keys, k)
	}
	return keys
}
