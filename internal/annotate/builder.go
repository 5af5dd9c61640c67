package annotate

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
)

// Build folds the recorded frame list and voice transitions into the
// artifact. Per-frame transforms are independent, so they run on a
// small worker pool; the output is written by frame index, which
// restores frame order regardless of completion order.
func Build(frames []capture.InputFrame, meta Metadata, start time.Time, voice []capture.VoiceEvent) (*Artifact, error) {
	annotations := make([]FrameAnnotation, len(frames))
	errs := make([]error, len(frames))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(frames) {
		workers = len(frames)
	}
	var wg sync.WaitGroup
	indexes := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				annotations[i], errs[i] = buildFrame(frames[i], start)
			}
		}()
	}
	for i := range frames {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}

	voiceRecords := make([]VoiceEventRecord, 0, len(voice))
	for _, v := range voice {
		ns, err := sinceStart(v.Time, start)
		if err != nil {
			return nil, fmt.Errorf("voice event: %w", err)
		}
		voiceRecords = append(voiceRecords, VoiceEventRecord{Speaking: v.Speaking, TimeNs: ns})
	}

	return &Artifact{
		Version:     SchemaVersion,
		Metadata:    meta.normalized(),
		Frames:      annotations,
		VoiceEvents: voiceRecords,
	}, nil
}

func buildFrame(frame capture.InputFrame, start time.Time) (FrameAnnotation, error) {
	frameTime, err := sinceStart(frame.Time, start)
	if err != nil {
		return FrameAnnotation{}, err
	}

	events := make([]InputEventRecord, 0, len(frame.Timeline))
	for _, ev := range frame.Timeline {
		record, ok := eventRecord(ev.Payload)
		if !ok {
			continue
		}
		ns, err := sinceStart(ev.Time, start)
		if err != nil {
			return FrameAnnotation{}, fmt.Errorf("input event: %w", err)
		}
		record.TimeNs = ns
		record.Simulated = ev.Simulated
		events = append(events, record)
	}

	return FrameAnnotation{
		FrameTimeNs:  frameTime,
		UserAction:   toAction(frame.UserKeys, frame.UserMouse, !frame.InferenceRunning, frame.Gamepad),
		SystemAction: toAction(frame.SystemKeys, frame.SystemMouse, frame.InferenceRunning, nil),
		InputEvents:  events,
	}, nil
}

func toAction(keys []input.Keycode, mouse state.MouseSample, inControl bool, pad *input.GamepadState) LowLevelAction {
	action := LowLevelAction{
		Mouse: &MouseActionRecord{
			MouseAbsolutePx: mouse.Pos,
			MouseDeltaPx:    mouse.Delta,
			ScrollDeltaPx:   mouse.Scroll,
			ButtonsDown:     buttonStrings(mouse.Buttons),
		},
		InControl: inControl,
	}
	if len(keys) > 0 {
		action.Keyboard = &KeyboardActionRecord{Keys: keyStrings(keys)}
	}
	if pad != nil {
		copied := *pad
		action.Gamepad = &copied
	}
	return action
}

func keyStrings(keys []input.Keycode) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func buttonStrings(buttons []input.Button) []string {
	out := make([]string, len(buttons))
	for i, b := range buttons {
		out[i] = string(b)
	}
	return out
}

func sinceStart(t, start time.Time) (uint64, error) {
	d := t.Sub(start)
	if d < 0 {
		return 0, fmt.Errorf("timestamp %v precedes session start %v", t, start)
	}
	return uint64(d.Nanoseconds()), nil
}

// eventRecord maps a payload variant to its wire record. Gamepad
// connect/disconnect events carry no input and are dropped.
func eventRecord(p input.Payload) (InputEventRecord, bool) {
	switch v := p.(type) {
	case input.KeyboardInput:
		return InputEventRecord{Type: EventKey, Key: string(v.Key), Pressed: v.Pressed}, true
	case input.MouseButton:
		return InputEventRecord{Type: EventMouseButton, Button: string(v.Button), Pressed: v.Pressed}, true
	case input.MouseMove:
		pos := v.Pos
		return InputEventRecord{Type: EventMouseMove, Vec: &pos}, true
	case input.MouseDelta:
		delta := v.Delta
		return InputEventRecord{Type: EventMouseDelta, Vec: &delta}, true
	case input.MouseWheel:
		delta := v.Delta
		return InputEventRecord{Type: EventMouseWheel, Vec: &delta}, true
	case input.GamepadAction:
		return gamepadRecord(v)
	default:
		return InputEventRecord{}, false
	}
}

func gamepadRecord(v input.GamepadAction) (InputEventRecord, bool) {
	switch v.Kind {
	case input.GamepadButton:
		return InputEventRecord{Type: EventGamepadButton, Button: v.Name, Pressed: v.Pressed}, true
	case input.GamepadAxis:
		return InputEventRecord{Type: EventGamepadAxis, Axis: v.Name, Value: v.Value}, true
	case input.GamepadTrigger:
		return InputEventRecord{Type: EventGamepadTrigger, Axis: v.Name, Value: v.Value}, true
	default:
		return InputEventRecord{}, false
	}
}
