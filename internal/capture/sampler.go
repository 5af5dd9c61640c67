package capture

import (
	"log/slog"
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
	"github.com/roach88/tracecap/internal/timeline"
)

// ghostingThreshold is the pressed-key count past which we assume
// keyboard ghosting or a driver fault rather than ten fingers.
const ghostingThreshold = 10

// KeyProber polls the OS for the live pressed state of a key. Platform
// specific; the core only needs it once per recording, to seed keys
// that were already held down before the first event could arrive.
type KeyProber interface {
	IsPressed(key input.Keycode) (bool, error)
	// Known returns every keycode the prober can check.
	Known() []input.Keycode
}

// Sampler builds one InputFrame per video-pipeline callback. It is
// invoked synchronously on the pipeline's own thread, at most once per
// produced frame.
type Sampler struct {
	state    *state.InputState
	tl       *timeline.Timeline
	gamepads *input.GamepadMirror
	logger   *slog.Logger
}

// NewSampler wires the sampler to the aggregator, timeline, and
// controller mirror it samples.
func NewSampler(st *state.InputState, tl *timeline.Timeline, pads *input.GamepadMirror, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{state: st, tl: tl, gamepads: pads, logger: logger}
}

// Sample atomically snapshots the aggregator and drains the per-frame
// timeline into a new InputFrame. More than ghostingThreshold
// simultaneously pressed keys is logged as an anomaly but does not
// abort capture.
func (s *Sampler) Sample() InputFrame {
	raw := s.state.Sample(s.tl)

	var pad *input.GamepadState
	if s.gamepads != nil {
		pad = s.gamepads.State()
	}

	if len(raw.UserKeys) > ghostingThreshold {
		s.logger.Error("too many keys pressed at once, likely ghosting",
			"count", len(raw.UserKeys), "keys", raw.UserKeys)
	}

	return InputFrame{
		Time:             raw.Time,
		UserKeys:         raw.UserKeys,
		SystemKeys:       raw.SystemKeys,
		InferenceRunning: raw.InferenceRunning,
		UserMouse:        raw.UserMouse,
		SystemMouse:      raw.SystemMouse,
		Gamepad:          pad,
		Timeline:         raw.Timeline,
	}
}

// DoubleCheckKeyState polls the OS key state for every known key and
// seeds the aggregator's pressed set from keys already held when
// recording began. Events from before recording start are never
// delivered, so without this the eventual release events would have
// nothing to clear.
func (s *Sampler) DoubleCheckKeyState(prober KeyProber) {
	if prober == nil {
		return
	}
	held := make(map[input.Keycode]time.Time)
	now := time.Now()
	for _, key := range prober.Known() {
		pressed, err := prober.IsPressed(key)
		if err != nil {
			s.logger.Debug("key state probe failed", "key", key, "error", err)
			continue
		}
		if pressed {
			held[key] = now
		}
	}
	if len(held) > 0 {
		s.logger.Warn("starting a recording with keys down", "keys", keysOf(held))
	}
	s.state.SeedPressedKeys(held)
}

func keysOf(m map[input.Keycode]time.Time) []input.Keycode {
	keys := make([]input.Keycode, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
