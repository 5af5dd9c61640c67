package state

import (
	"sort"
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/timeline"
)

// MouseSample is the per-space mouse aggregate of one frame sample.
type MouseSample struct {
	Delta   input.Vec2
	Pos     input.Vec2
	Buttons []input.Button
	Scroll  input.Vec2
}

// Sample is the raw atomic snapshot taken once per video frame. The
// delta/scroll accumulators and the per-frame timeline are cleared by
// the act of sampling; the pressed sets are copied.
type Sample struct {
	Time             time.Time
	UserKeys         []input.Keycode
	SystemKeys       []input.Keycode
	InferenceRunning bool
	UserMouse        MouseSample
	SystemMouse      MouseSample
	Timeline         []input.DeviceEvent
}

// Sample atomically reads and clears the per-frame aggregates. Both
// the state lock and the timeline lock are held across the read, in
// state-then-timeline order, the same order the bus consumer takes
// them, so no event application can interleave mid-snapshot. Hotkeys
// are filtered from both key sets.
func (s *InputState) Sample(tl *timeline.Timeline) Sample {
	s.mu.Lock()

	inferenceRunning := false
	if s.inferenceRunning != nil {
		inferenceRunning = s.inferenceRunning.Get()
	}
	events := tl.DrainFrame()
	now := time.Now()

	delta := sumVecs(s.mouseDeltas)
	scroll := sumVecs(s.scrollDeltas)
	systemDelta := sumVecs(s.simMouseDeltas)
	systemScroll := sumVecs(s.simScrollDeltas)
	s.mouseDeltas = nil
	s.scrollDeltas = nil
	s.simMouseDeltas = nil
	s.simScrollDeltas = nil

	systemPos := s.simMousePos
	s.simMousePos = input.Vec2{}

	userMouse := MouseSample{
		Delta:   delta,
		Pos:     s.mousePos,
		Buttons: sortedButtons(s.pressedButtons),
		Scroll:  scroll,
	}
	systemMouse := MouseSample{
		Delta:   systemDelta,
		Pos:     systemPos,
		Buttons: sortedButtons(s.simButtons),
		Scroll:  systemScroll,
	}

	userKeys := make([]input.Keycode, 0, len(s.pressedKeys))
	for k := range s.pressedKeys {
		if !s.hotkeys.Contains(k) {
			userKeys = append(userKeys, k)
		}
	}
	systemKeys := make([]input.Keycode, 0, len(s.simKeys))
	for k := range s.simKeys {
		if !s.hotkeys.Contains(k) {
			systemKeys = append(systemKeys, k)
		}
	}

	// Release before the sort and struct assembly below; the locks only
	// need to cover the reads and clears.
	s.mu.Unlock()

	sortKeys(userKeys)
	sortKeys(systemKeys)

	return Sample{
		Time:             now,
		UserKeys:         userKeys,
		SystemKeys:       systemKeys,
		InferenceRunning: inferenceRunning,
		UserMouse:        userMouse,
		SystemMouse:      systemMouse,
		Timeline:         events,
	}
}

func sumVecs(vs []input.Vec2) input.Vec2 {
	var sum input.Vec2
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum
}

func sortedButtons(set map[input.Button]struct{}) []input.Button {
	buttons := make([]input.Button, 0, len(set))
	for b := range set {
		buttons = append(buttons, b)
	}
	sort.Slice(buttons, func(i, j int) bool { return buttons[i] < buttons[j] })
	return buttons
}

func sortKeys(keys []input.Keycode) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
