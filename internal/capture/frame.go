// Package capture samples the input aggregate once per encoded video
// frame and holds the video-pipeline contract the recording session
// drives.
package capture

import (
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/state"
)

// InputFrame is the immutable per-video-frame snapshot. Created once
// per frame by the Sampler and owned thereafter by the growing session
// frame list.
type InputFrame struct {
	Time             time.Time
	UserKeys         []input.Keycode
	SystemKeys       []input.Keycode
	InferenceRunning bool
	UserMouse        state.MouseSample
	SystemMouse      state.MouseSample
	Gamepad          *input.GamepadState
	Timeline         []input.DeviceEvent
}
