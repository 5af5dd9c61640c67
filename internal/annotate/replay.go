package annotate

import (
	"fmt"
	"time"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
)

// FramesFromArtifact reconstructs the per-frame snapshots from a saved
// artifact so the consistency checker can re-run on it. The inverse of
// Build, up to the gamepad snapshot on the system action, which Build
// never writes.
func FramesFromArtifact(a *Artifact) ([]capture.InputFrame, error) {
	start := time.Unix(0, a.Metadata.StartTimeUnixNs)
	frames := make([]capture.InputFrame, 0, len(a.Frames))
	for i, fa := range a.Frames {
		events := make([]input.DeviceEvent, 0, len(fa.InputEvents))
		for _, rec := range fa.InputEvents {
			payload, err := eventPayload(rec)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			events = append(events, input.DeviceEvent{
				Time:      start.Add(time.Duration(rec.TimeNs)),
				Payload:   payload,
				Simulated: rec.Simulated,
			})
		}
		frames = append(frames, capture.InputFrame{
			Time:             start.Add(time.Duration(fa.FrameTimeNs)),
			UserKeys:         keycodes(fa.UserAction.Keyboard),
			SystemKeys:       keycodes(fa.SystemAction.Keyboard),
			InferenceRunning: fa.SystemAction.InControl,
			UserMouse:        mouseSample(fa.UserAction.Mouse),
			SystemMouse:      mouseSample(fa.SystemAction.Mouse),
			Gamepad:          fa.UserAction.Gamepad,
			Timeline:         events,
		})
	}
	return frames, nil
}

func keycodes(kb *KeyboardActionRecord) []input.Keycode {
	if kb == nil {
		return nil
	}
	out := make([]input.Keycode, len(kb.Keys))
	for i, k := range kb.Keys {
		out[i] = input.Keycode(k)
	}
	return out
}

func mouseSample(m *MouseActionRecord) state.MouseSample {
	if m == nil {
		return state.MouseSample{}
	}
	buttons := make([]input.Button, len(m.ButtonsDown))
	for i, b := range m.ButtonsDown {
		buttons[i] = input.Button(b)
	}
	return state.MouseSample{
		Delta:   m.MouseDeltaPx,
		Pos:     m.MouseAbsolutePx,
		Buttons: buttons,
		Scroll:  m.ScrollDeltaPx,
	}
}

func eventPayload(rec InputEventRecord) (input.Payload, error) {
	switch rec.Type {
	case EventKey:
		return input.KeyboardInput{Key: input.Keycode(rec.Key), Pressed: rec.Pressed}, nil
	case EventMouseButton:
		return input.MouseButton{Button: input.Button(rec.Button), Pressed: rec.Pressed}, nil
	case EventMouseMove:
		return input.MouseMove{Pos: vecOrZero(rec.Vec)}, nil
	case EventMouseDelta:
		return input.MouseDelta{Delta: vecOrZero(rec.Vec)}, nil
	case EventMouseWheel:
		return input.MouseWheel{Delta: vecOrZero(rec.Vec)}, nil
	case EventGamepadButton:
		return input.GamepadAction{Kind: input.GamepadButton, Name: rec.Button, Pressed: rec.Pressed}, nil
	case EventGamepadAxis:
		return input.GamepadAction{Kind: input.GamepadAxis, Name: rec.Axis, Value: rec.Value}, nil
	case EventGamepadTrigger:
		return input.GamepadAction{Kind: input.GamepadTrigger, Name: rec.Axis, Value: rec.Value}, nil
	default:
		return nil, fmt.Errorf("unknown input event type %q", rec.Type)
	}
}

func vecOrZero(v *input.Vec2) input.Vec2 {
	if v == nil {
		return input.Vec2{}
	}
	return *v
}
