package check

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/input"
)

// checkTimeline replays the raw event timeline frame by frame,
// maintaining four running sets (user/system keys, user/system
// buttons) seeded from the first frame's snapshots, and verifies after
// every frame that the replayed sets match the sets the snapshot
// recorded. It also validates per-frame event ordering and the mouse
// delta/scroll/position sums along the way.
//
// Seeding from the first frame matters: keys held down before the
// recording started never produced press events, only their eventual
// releases appear in the timeline.
func checkTimeline(cfg Config, in Input) []Finding {
	if len(in.Frames) == 0 {
		return nil
	}

	var findings []Finding
	report := func(f Finding) {
		findings = append(findings, f)
	}

	first := in.Frames[0]
	keys := input.NewKeySet(first.UserKeys...)
	systemKeys := input.NewKeySet(first.SystemKeys...)
	buttons := buttonSet(first.UserMouse.Buttons)
	systemButtons := buttonSet(first.SystemMouse.Buttons)

	var carriedPos *input.Vec2
	inferenceRunning := first.InferenceRunning
	suppress := 0

	for i, frame := range in.Frames {
		if frame.InferenceRunning != inferenceRunning {
			suppress = cfg.SuppressWindow
		} else if suppress > 0 {
			suppress--
		}
		inferenceRunning = frame.InferenceRunning

		start := in.StartTime
		if i > 0 {
			start = in.Frames[i-1].Time
		}

		// Events attributed to this frame must sit between the previous
		// frame's sample and this one's. A single straggler is expected
		// now and then from lock timing, so this never escalates.
		outOfOrder := 0
		for _, ev := range frame.Timeline {
			if ev.Time.Before(start) || ev.Time.After(frame.Time) {
				outOfOrder++
			}
		}
		if outOfOrder > 0 {
			report(Finding{
				Severity: SeverityWarning,
				Code:     CodeTimelineOrder,
				Frame:    i,
				Message:  fmt.Sprintf("%d events outside the frame window", outOfOrder),
			})
		}

		findings = append(findings, checkFrameMouseAggregates(frame, i, &carriedPos)...)

		// Replay button events, then compare both button sets.
		for _, ev := range frame.Timeline {
			mb, ok := ev.Payload.(input.MouseButton)
			if !ok {
				continue
			}
			applySet(buttonTarget(ev.Simulated, buttons, systemButtons), mb.Button, mb.Pressed)
		}
		if got, want := sortedSet(buttons), dedupSorted(frame.UserMouse.Buttons); !slices.Equal(got, want) {
			report(Finding{
				Severity: SeverityError,
				Code:     CodeUserButtonsMismatch,
				Frame:    i,
				Message:  fmt.Sprintf("snapshot holds %v but replay yields %v", want, got),
			})
		}
		if got, want := sortedSet(systemButtons), dedupSorted(frame.SystemMouse.Buttons); !slices.Equal(got, want) && suppress == 0 {
			report(Finding{
				Severity: SeverityError,
				Code:     CodeSystemButtonsMism,
				Frame:    i,
				Message:  fmt.Sprintf("snapshot holds %v but replay yields %v", want, got),
			})
		}

		// Replay key events, hotkeys excluded, then compare key sets.
		for _, ev := range frame.Timeline {
			kb, ok := ev.Payload.(input.KeyboardInput)
			if !ok || cfg.Hotkeys.Contains(kb.Key) {
				continue
			}
			applySet(keyTarget(ev.Simulated, keys, systemKeys), kb.Key, kb.Pressed)
		}
		if got, want := sortedSet(keys), dedupSorted(frame.UserKeys); !slices.Equal(got, want) {
			report(Finding{
				Severity: SeverityError,
				Code:     CodeUserKeysMismatch,
				Frame:    i,
				Message:  fmt.Sprintf("snapshot holds %v but replay yields %v", want, got),
			})
		}
		if got, want := sortedSet(systemKeys), dedupSorted(frame.SystemKeys); !slices.Equal(got, want) && suppress == 0 {
			report(Finding{
				Severity: SeverityError,
				Code:     CodeSystemKeysMismatch,
				Frame:    i,
				Message:  fmt.Sprintf("snapshot holds %v but replay yields %v", want, got),
			})
		}
	}

	return findings
}

// checkFrameMouseAggregates verifies the frame's recorded mouse
// aggregates against the raw events attributed to it. The cursor
// position carries forward across frames without a MouseMove.
func checkFrameMouseAggregates(frame capture.InputFrame, i int, carriedPos **input.Vec2) []Finding {
	var findings []Finding

	var delta, scroll input.Vec2
	var lastMove *input.Vec2
	for _, ev := range frame.Timeline {
		switch p := ev.Payload.(type) {
		case input.MouseDelta:
			delta = delta.Add(p.Delta)
		case input.MouseWheel:
			scroll = scroll.Add(p.Delta)
		case input.MouseMove:
			pos := p.Pos
			lastMove = &pos
		}
	}

	if want := frame.UserMouse.Delta.Add(frame.SystemMouse.Delta); delta != want {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeMouseDeltaMismatch,
			Frame:    i,
			Message:  fmt.Sprintf("frame records %v but events sum to %v", want, delta),
		})
	}

	if want := frame.UserMouse.Scroll.Add(frame.SystemMouse.Scroll); scroll != want {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeMouseScrollMismatch,
			Frame:    i,
			Message:  fmt.Sprintf("frame records %v but events sum to %v", want, scroll),
		})
	}

	if lastMove != nil {
		*carriedPos = lastMove
	}
	if *carriedPos != nil {
		want := frame.UserMouse.Pos.Add(frame.SystemMouse.Pos)
		if **carriedPos != want {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     CodeMousePosMismatch,
				Frame:    i,
				Message:  fmt.Sprintf("frame records %v but the last move event sits at %v", want, **carriedPos),
			})
		}
	}

	return findings
}

func buttonSet(buttons []input.Button) map[input.Button]struct{} {
	set := make(map[input.Button]struct{}, len(buttons))
	for _, b := range buttons {
		set[b] = struct{}{}
	}
	return set
}

func keyTarget(simulated bool, user input.KeySet, system input.KeySet) map[input.Keycode]struct{} {
	if simulated {
		return system
	}
	return user
}

func buttonTarget(simulated bool, user, system map[input.Button]struct{}) map[input.Button]struct{} {
	if simulated {
		return system
	}
	return user
}

func applySet[T comparable](set map[T]struct{}, v T, pressed bool) {
	if pressed {
		set[v] = struct{}{}
	} else {
		delete(set, v)
	}
}

func sortedSet[T ~string](set map[T]struct{}) []T {
	out := make([]T, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupSorted[T ~string](list []T) []T {
	out := make([]T, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return slices.Compact(out)
}
