package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/testutil"
	"github.com/roach88/tracecap/internal/timeline"
)

func newTestTimeline() *timeline.Timeline {
	tl := timeline.New()
	tl.Start()
	return tl
}

func keyDown(clock *testutil.Clock, key input.Keycode, simulated bool) input.DeviceEvent {
	return input.DeviceEvent{
		Time:      clock.Next(),
		Payload:   input.KeyboardInput{Key: key, Pressed: true},
		Simulated: simulated,
	}
}

func keyUp(clock *testutil.Clock, key input.Keycode, simulated bool) input.DeviceEvent {
	return input.DeviceEvent{
		Time:      clock.Next(),
		Payload:   input.KeyboardInput{Key: key, Pressed: false},
		Simulated: simulated,
	}
}

func TestApply_TracksUserAndSystemSpacesSeparately(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	s.Apply(keyDown(clock, input.KeyA, false))
	s.Apply(keyDown(clock, input.KeyB, true))

	assert.ElementsMatch(t, []input.Keycode{input.KeyA}, s.UserKeys())
	assert.ElementsMatch(t, []input.Keycode{input.KeyB}, s.SystemKeys())

	s.Apply(keyUp(clock, input.KeyA, false))
	s.Apply(keyUp(clock, input.KeyB, true))

	assert.Empty(t, s.UserKeys())
	assert.Empty(t, s.SystemKeys())
}

func TestApply_KeyRepeatKeepsOriginalPressTime(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	first := keyDown(clock, input.KeyA, false)
	s.Apply(first)
	// Auto-repeat delivers more press events for a held key.
	s.Apply(keyDown(clock, input.KeyA, false))
	s.Apply(keyDown(clock, input.KeyA, false))

	require.Len(t, s.UserKeys(), 1)
	s.mu.Lock()
	assert.Equal(t, first.Time, s.pressedKeys[input.KeyA])
	s.mu.Unlock()
}

func TestApply_ReleaseWithoutPressIsIgnored(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	s.Apply(keyUp(clock, input.KeyZ, false))
	assert.Empty(t, s.UserKeys())
}

func TestToggle_PhysicalPressStopsModelControl(t *testing.T) {
	rec := &Recorder{}
	s := New(Options{Simulator: rec})
	clock := testutil.NewFrameClock(20)

	flag := NewFlag(true)
	s.SetInferenceFlag(flag)

	// The model holds a key.
	s.Apply(keyDown(clock, input.KeyW, true))
	require.ElementsMatch(t, []input.Keycode{input.KeyW}, s.SystemKeys())

	// Any physical press takes control back and lifts the held key.
	s.Apply(keyDown(clock, input.KeyA, false))

	assert.False(t, flag.Get())
	assert.Empty(t, s.SystemKeys())
	require.Len(t, rec.Ops(), 1)
	assert.Equal(t, SimOp{Op: "key", Key: input.KeyW, Pressed: false}, rec.Ops()[0])
}

func TestToggle_ReEnableKeyRestartsModelControl(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	flag := NewFlag(false)
	s.SetInferenceFlag(flag)

	// An ordinary key does not re-enable.
	s.Apply(keyDown(clock, input.KeyA, false))
	assert.False(t, flag.Get())

	s.Apply(keyDown(clock, input.KeyLeftBracket, false))
	assert.True(t, flag.Get())
}

func TestToggle_ReleasesAndSimulatedEventsDoNotToggle(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	flag := NewFlag(true)
	s.SetInferenceFlag(flag)

	s.Apply(keyUp(clock, input.KeyA, false))
	assert.True(t, flag.Get(), "release must not stop model control")

	s.Apply(keyDown(clock, input.KeyA, true))
	assert.True(t, flag.Get(), "the model's own input must not stop model control")
}

func TestToggle_RepeatedPressesFlipOnlyOnce(t *testing.T) {
	rec := &Recorder{}
	s := New(Options{Simulator: rec})
	clock := testutil.NewFrameClock(20)

	flag := NewFlag(true)
	s.SetInferenceFlag(flag)
	s.Apply(keyDown(clock, input.KeyW, true))

	for i := 0; i < 5; i++ {
		s.Apply(keyDown(clock, input.KeyA, false))
		s.Apply(keyUp(clock, input.KeyA, false))
	}

	assert.False(t, flag.Get())
	// The lift ran exactly once; repeat presses found the flag already
	// off.
	assert.Len(t, rec.Ops(), 1)
}

func TestLiftSimulatedKeys_SkipsKeysHeldByUser(t *testing.T) {
	rec := &Recorder{}
	s := New(Options{Simulator: rec})
	clock := testutil.NewFrameClock(20)

	// W is held both physically and by the model; E only by the model.
	s.Apply(keyDown(clock, input.KeyW, false))
	s.Apply(keyDown(clock, input.KeyW, true))
	s.Apply(keyDown(clock, input.KeyE, true))

	s.LiftSimulatedKeys(true)

	assert.Empty(t, s.SystemKeys())
	assert.ElementsMatch(t, []input.Keycode{input.KeyW}, s.UserKeys(),
		"the user's physical hold survives the lift")

	// Only E got an injected release; releasing W would yank a key the
	// user is holding.
	require.Len(t, rec.Ops(), 1)
	assert.Equal(t, input.KeyE, rec.Ops()[0].Key)
}

func TestLiftSimulatedKeys_WithoutSkipWaitKeepsMarkUntilFeedback(t *testing.T) {
	rec := &Recorder{}
	s := New(Options{Simulator: rec})
	clock := testutil.NewFrameClock(20)

	s.Apply(keyDown(clock, input.KeyE, true))
	s.LiftSimulatedKeys(false)

	// The release was injected but the mark stays until the release
	// event arrives back through the bus.
	require.Len(t, rec.Ops(), 1)
	assert.ElementsMatch(t, []input.Keycode{input.KeyE}, s.SystemKeys())

	s.Apply(keyUp(clock, input.KeyE, true))
	assert.Empty(t, s.SystemKeys())
}

func TestReset_ClearsEverything(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	s.Apply(keyDown(clock, input.KeyA, false))
	s.Apply(keyDown(clock, input.KeyB, true))
	s.Apply(input.DeviceEvent{Time: clock.Next(), Payload: input.MouseDelta{Delta: input.Vec2{X: 3, Y: 4}}})

	s.Reset()

	assert.Empty(t, s.UserKeys())
	assert.Empty(t, s.SystemKeys())
	sample := s.Sample(newTestTimeline())
	assert.True(t, sample.UserMouse.Delta.IsZero())
}

func TestSeedPressedKeys(t *testing.T) {
	s := New(Options{})
	clock := testutil.NewFrameClock(20)

	now := clock.Next()
	s.SeedPressedKeys(map[input.Keycode]time.Time{input.KeyShiftL: now})
	assert.ElementsMatch(t, []input.Keycode{input.KeyShiftL}, s.UserKeys())

	// A later release clears the seeded key as if we saw the press.
	s.Apply(keyUp(clock, input.KeyShiftL, false))
	assert.Empty(t, s.UserKeys())
}

// Property: after any event sequence, every key reported pressed was
// pressed at some point and not released since, per space.
func TestApply_PressedSetMatchesNaiveReplay(t *testing.T) {
	keys := []input.Keycode{input.KeyA, input.KeyB, input.KeyC, input.KeyD}

	rapid.Check(t, func(rt *rapid.T) {
		s := New(Options{})
		clock := testutil.NewFrameClock(1000)

		naive := map[bool]map[input.Keycode]bool{false: {}, true: {}}
		n := rapid.IntRange(0, 200).Draw(rt, "n")
		for i := 0; i < n; i++ {
			key := keys[rapid.IntRange(0, len(keys)-1).Draw(rt, "key")]
			pressed := rapid.Bool().Draw(rt, "pressed")
			simulated := rapid.Bool().Draw(rt, "simulated")

			s.Apply(input.DeviceEvent{
				Time:      clock.Next(),
				Payload:   input.KeyboardInput{Key: key, Pressed: pressed},
				Simulated: simulated,
			})
			naive[simulated][key] = pressed
		}

		var wantUser, wantSystem []input.Keycode
		for k, down := range naive[false] {
			if down {
				wantUser = append(wantUser, k)
			}
		}
		for k, down := range naive[true] {
			if down {
				wantSystem = append(wantSystem, k)
			}
		}
		assert.ElementsMatch(rt, wantUser, s.UserKeys())
		assert.ElementsMatch(rt, wantSystem, s.SystemKeys())
	})
}
