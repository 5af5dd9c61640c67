package annotate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
	"github.com/roach88/tracecap/internal/testutil"
)

func sessionMeta(start time.Time) Metadata {
	return Metadata{
		SessionID:       "0197a5e2-0000-7000-8000-000000000001",
		Env:             "desktop",
		User:            "tester",
		Task:            "navigate the menu",
		AppVersion:      "1.2.0",
		TargetFPS:       20,
		EncoderFrames:   2,
		StartTimeUnixNs: start.UnixNano(),
		WallDurationNs:  (100 * time.Millisecond).Nanoseconds(),
	}
}

func sessionFrames(start time.Time) []capture.InputFrame {
	pad := &input.GamepadState{}
	pad.Buttons.South = true
	pad.Triggers.Right = 0.5
	return []capture.InputFrame{
		{
			Time:     start.Add(50 * time.Millisecond),
			UserKeys: []input.Keycode{input.KeyW},
			UserMouse: state.MouseSample{
				Pos:     input.Vec2{X: 100, Y: 50},
				Delta:   input.Vec2{X: 3, Y: -1},
				Buttons: []input.Button{input.ButtonLeft},
			},
			Gamepad: pad,
			Timeline: []input.DeviceEvent{
				{Time: start.Add(25 * time.Millisecond), Payload: input.KeyboardInput{Key: input.KeyW, Pressed: true}},
				{Time: start.Add(30 * time.Millisecond), Payload: input.MouseButton{Button: input.ButtonLeft, Pressed: true}},
				{Time: start.Add(40 * time.Millisecond), Payload: input.MouseMove{Pos: input.Vec2{X: 100, Y: 50}}},
			},
		},
		{
			Time:             start.Add(100 * time.Millisecond),
			SystemKeys:       []input.Keycode{input.KeyD},
			InferenceRunning: true,
			Timeline: []input.DeviceEvent{
				{Time: start.Add(75 * time.Millisecond), Payload: input.KeyboardInput{Key: input.KeyD, Pressed: true}, Simulated: true},
			},
		},
	}
}

func TestBuild_GoldenArtifact(t *testing.T) {
	start := testutil.Base
	voice := []capture.VoiceEvent{{Speaking: true, Time: start.Add(60 * time.Millisecond)}}

	a, err := Build(sessionFrames(start), sessionMeta(start), start, voice)
	require.NoError(t, err)

	data, err := json.MarshalIndent(a, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "session", data)
}

func TestBuild_InControlFollowsProvenance(t *testing.T) {
	start := testutil.Base
	a, err := Build(sessionFrames(start), sessionMeta(start), start, nil)
	require.NoError(t, err)
	require.Len(t, a.Frames, 2)

	assert.True(t, a.Frames[0].UserAction.InControl)
	assert.False(t, a.Frames[0].SystemAction.InControl)
	assert.False(t, a.Frames[1].UserAction.InControl)
	assert.True(t, a.Frames[1].SystemAction.InControl)

	// The controller snapshot only ever rides on the user action.
	assert.NotNil(t, a.Frames[0].UserAction.Gamepad)
	assert.Nil(t, a.Frames[0].SystemAction.Gamepad)
}

func TestBuild_PreservesFrameOrder(t *testing.T) {
	start := testutil.Base
	clock := testutil.NewFrameClock(20)
	frames := make([]capture.InputFrame, 200)
	for i := range frames {
		frames[i].Time = clock.Next()
	}

	a, err := Build(frames, sessionMeta(start), start, nil)
	require.NoError(t, err)
	require.Len(t, a.Frames, 200)
	for i := 1; i < len(a.Frames); i++ {
		assert.Greater(t, a.Frames[i].FrameTimeNs, a.Frames[i-1].FrameTimeNs)
	}
}

func TestBuild_PreStartEventFails(t *testing.T) {
	start := testutil.Base
	frames := []capture.InputFrame{{
		Time: start.Add(50 * time.Millisecond),
		Timeline: []input.DeviceEvent{{
			Time:    start.Add(-time.Second),
			Payload: input.KeyboardInput{Key: input.KeyW, Pressed: true},
		}},
	}}

	_, err := Build(frames, sessionMeta(start), start, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0")
}

func TestBuild_NormalizesMetadata(t *testing.T) {
	start := testutil.Base
	meta := sessionMeta(start)
	meta.Task = "café menu" // decomposed accent

	a, err := Build(nil, meta, start, nil)
	require.NoError(t, err)
	assert.Equal(t, "café menu", a.Metadata.Task)
}

func TestBuild_DropsGamepadConnectionEvents(t *testing.T) {
	start := testutil.Base
	frames := []capture.InputFrame{{
		Time: start.Add(50 * time.Millisecond),
		Timeline: []input.DeviceEvent{
			{Time: start.Add(10 * time.Millisecond), Payload: input.GamepadAction{Kind: input.GamepadConnected}},
			{Time: start.Add(20 * time.Millisecond), Payload: input.GamepadAction{Kind: input.GamepadButton, Name: input.PadSouth, Pressed: true}},
			{Time: start.Add(30 * time.Millisecond), Payload: input.GamepadAction{Kind: input.GamepadDisconnected}},
		},
	}}

	a, err := Build(frames, sessionMeta(start), start, nil)
	require.NoError(t, err)
	require.Len(t, a.Frames[0].InputEvents, 1)
	assert.Equal(t, EventGamepadButton, a.Frames[0].InputEvents[0].Type)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	start := testutil.Base
	a, err := Build(sessionFrames(start), sessionMeta(start), start, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, a.Save(dir))

	loaded, err := Load(dir + "/" + ArtifactFileName)
	require.NoError(t, err)
	assert.Equal(t, a, loaded)
}

func TestLoad_RejectsUnknownVersion(t *testing.T) {
	start := testutil.Base
	a, err := Build(nil, sessionMeta(start), start, nil)
	require.NoError(t, err)
	a.Version = SchemaVersion + 1

	dir := t.TempDir()
	require.NoError(t, a.Save(dir))

	_, err = Load(dir + "/" + ArtifactFileName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact version")
}
