package input

import "sync"

// GamepadEventKind distinguishes the controller event variants that a
// GamepadAction can carry.
type GamepadEventKind int

const (
	// GamepadButton is a digital button press or release.
	GamepadButton GamepadEventKind = iota + 1
	// GamepadAxis is a stick axis position change.
	GamepadAxis
	// GamepadTrigger is an analog trigger value change.
	GamepadTrigger
	// GamepadConnected signals a controller attach.
	GamepadConnected
	// GamepadDisconnected signals a controller detach.
	GamepadDisconnected
)

// GamepadAction is a raw controller event as delivered by the poll
// loop. Only the fields relevant to Kind are populated.
type GamepadAction struct {
	Kind    GamepadEventKind
	Name    string // button name ("south", "dpad_up", ...) or axis/trigger name
	Pressed bool
	Value   float32
}

// Gamepad button and axis names. These match the wire names the
// annotation artifact records.
const (
	PadSouth        = "south"
	PadNorth        = "north"
	PadEast         = "east"
	PadWest         = "west"
	PadDPadUp       = "dpad_up"
	PadDPadDown     = "dpad_down"
	PadDPadLeft     = "dpad_left"
	PadDPadRight    = "dpad_right"
	PadStart        = "start"
	PadSelect       = "select"
	PadLeftBumper   = "left_bumper"
	PadRightBumper  = "right_bumper"
	PadLeftStick    = "left_stick"
	PadRightStick   = "right_stick"
	PadLeftStickX   = "left_stick_x"
	PadLeftStickY   = "left_stick_y"
	PadRightStickX  = "right_stick_x"
	PadRightStickY  = "right_stick_y"
	PadLeftTrigger  = "left_trigger"
	PadRightTrigger = "right_trigger"
)

// GamepadButtons is the digital button portion of a gamepad snapshot.
type GamepadButtons struct {
	South       bool `json:"south"`
	North       bool `json:"north"`
	East        bool `json:"east"`
	West        bool `json:"west"`
	DPadUp      bool `json:"dpad_up"`
	DPadDown    bool `json:"dpad_down"`
	DPadLeft    bool `json:"dpad_left"`
	DPadRight   bool `json:"dpad_right"`
	Start       bool `json:"start"`
	Select      bool `json:"select"`
	LeftBumper  bool `json:"left_bumper"`
	RightBumper bool `json:"right_bumper"`
}

// Stick is one analog stick with its click state.
type Stick struct {
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Pressed bool    `json:"pressed"`
}

// GamepadTriggers holds the analog trigger values.
type GamepadTriggers struct {
	Left  float32 `json:"left_trigger"`
	Right float32 `json:"right_trigger"`
}

// GamepadState is a point-in-time snapshot of the connected controller.
type GamepadState struct {
	Buttons    GamepadButtons  `json:"buttons"`
	Triggers   GamepadTriggers `json:"triggers"`
	LeftStick  Stick           `json:"left_stick"`
	RightStick Stick           `json:"right_stick"`
}

// GamepadMirror maintains the latest controller snapshot from the raw
// event stream. Nil snapshot means no controller is connected.
//
// Safe for concurrent use: the poll loop applies events while the
// frame snapshot builder reads the state.
type GamepadMirror struct {
	mu    sync.Mutex
	state *GamepadState
}

// NewGamepadMirror returns a mirror with no controller connected.
func NewGamepadMirror() *GamepadMirror {
	return &GamepadMirror{}
}

// State returns a copy of the current snapshot, or nil when no
// controller is connected.
func (m *GamepadMirror) State() *GamepadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	st := *m.state
	return &st
}

// Apply folds one controller event into the mirrored snapshot.
func (m *GamepadMirror) Apply(ev GamepadAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case GamepadConnected:
		if m.state == nil {
			m.state = &GamepadState{}
		}
		return
	case GamepadDisconnected:
		m.state = nil
		return
	}

	// Any other event implies a controller is present.
	if m.state == nil {
		m.state = &GamepadState{}
	}

	switch ev.Kind {
	case GamepadButton:
		m.applyButton(ev.Name, ev.Pressed)
	case GamepadAxis:
		switch ev.Name {
		case PadLeftStickX:
			m.state.LeftStick.X = ev.Value
		case PadLeftStickY:
			m.state.LeftStick.Y = ev.Value
		case PadRightStickX:
			m.state.RightStick.X = ev.Value
		case PadRightStickY:
			m.state.RightStick.Y = ev.Value
		}
	case GamepadTrigger:
		switch ev.Name {
		case PadLeftTrigger:
			m.state.Triggers.Left = ev.Value
		case PadRightTrigger:
			m.state.Triggers.Right = ev.Value
		}
	}
}

func (m *GamepadMirror) applyButton(name string, pressed bool) {
	b := &m.state.Buttons
	switch name {
	case PadSouth:
		b.South = pressed
	case PadNorth:
		b.North = pressed
	case PadEast:
		b.East = pressed
	case PadWest:
		b.West = pressed
	case PadDPadUp:
		b.DPadUp = pressed
	case PadDPadDown:
		b.DPadDown = pressed
	case PadDPadLeft:
		b.DPadLeft = pressed
	case PadDPadRight:
		b.DPadRight = pressed
	case PadStart:
		b.Start = pressed
	case PadSelect:
		b.Select = pressed
	case PadLeftBumper:
		b.LeftBumper = pressed
	case PadRightBumper:
		b.RightBumper = pressed
	case PadLeftStick:
		m.state.LeftStick.Pressed = pressed
	case PadRightStick:
		m.state.RightStick.Pressed = pressed
	}
}
