package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/testutil"
)

func TestFramesFromArtifact_InvertsBuild(t *testing.T) {
	start := testutil.Base
	frames := sessionFrames(start)

	a, err := Build(frames, sessionMeta(start), start, nil)
	require.NoError(t, err)

	got, err := FramesFromArtifact(a)
	require.NoError(t, err)
	require.Len(t, got, len(frames))

	for i := range frames {
		assert.True(t, got[i].Time.Equal(frames[i].Time), "frame %d time", i)
		assert.Equal(t, frames[i].UserKeys, got[i].UserKeys, "frame %d user keys", i)
		assert.Equal(t, frames[i].SystemKeys, got[i].SystemKeys, "frame %d system keys", i)
		assert.Equal(t, frames[i].InferenceRunning, got[i].InferenceRunning, "frame %d control", i)
		assert.Equal(t, frames[i].UserMouse.Delta, got[i].UserMouse.Delta, "frame %d delta", i)
		assert.Equal(t, frames[i].UserMouse.Pos, got[i].UserMouse.Pos, "frame %d pos", i)
		require.Len(t, got[i].Timeline, len(frames[i].Timeline), "frame %d timeline", i)
		for j, ev := range frames[i].Timeline {
			assert.True(t, got[i].Timeline[j].Time.Equal(ev.Time), "frame %d event %d time", i, j)
			assert.Equal(t, ev.Payload, got[i].Timeline[j].Payload, "frame %d event %d payload", i, j)
			assert.Equal(t, ev.Simulated, got[i].Timeline[j].Simulated, "frame %d event %d provenance", i, j)
		}
	}
}

func TestFramesFromArtifact_EmptyKeyboardMeansNoKeys(t *testing.T) {
	a := &Artifact{
		Version:  SchemaVersion,
		Metadata: Metadata{StartTimeUnixNs: testutil.Base.UnixNano()},
		Frames: []FrameAnnotation{{
			FrameTimeNs: 50_000_000,
			UserAction:  LowLevelAction{Mouse: &MouseActionRecord{}, InControl: true},
			SystemAction: LowLevelAction{
				Mouse: &MouseActionRecord{ButtonsDown: []string{"Right"}},
			},
		}},
	}

	got, err := FramesFromArtifact(a)
	require.NoError(t, err)
	assert.Nil(t, got[0].UserKeys)
	assert.Equal(t, []input.Button{input.ButtonRight}, got[0].SystemMouse.Buttons)
}

func TestFramesFromArtifact_UnknownEventType(t *testing.T) {
	a := &Artifact{
		Version:  SchemaVersion,
		Metadata: Metadata{StartTimeUnixNs: testutil.Base.UnixNano()},
		Frames: []FrameAnnotation{{
			InputEvents: []InputEventRecord{{Type: "hologram"}},
		}},
	}

	_, err := FramesFromArtifact(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown input event type "hologram"`)
}
