package input

// Keycode identifies a physical key by its OS-independent name.
// The names follow the layout position, not the character the key
// produces under the active keyboard layout.
type Keycode string

// Keycodes for the keys the capture engine refers to by name.
// Producers may submit keycodes outside this list; they pass through
// the bus and the aggregator untouched.
const (
	KeyA Keycode = "KeyA"
	KeyB Keycode = "KeyB"
	KeyC Keycode = "KeyC"
	KeyD Keycode = "KeyD"
	KeyE Keycode = "KeyE"
	KeyF Keycode = "KeyF"
	KeyG Keycode = "KeyG"
	KeyH Keycode = "KeyH"
	KeyI Keycode = "KeyI"
	KeyJ Keycode = "KeyJ"
	KeyK Keycode = "KeyK"
	KeyL Keycode = "KeyL"
	KeyM Keycode = "KeyM"
	KeyN Keycode = "KeyN"
	KeyO Keycode = "KeyO"
	KeyP Keycode = "KeyP"
	KeyQ Keycode = "KeyQ"
	KeyR Keycode = "KeyR"
	KeyS Keycode = "KeyS"
	KeyT Keycode = "KeyT"
	KeyU Keycode = "KeyU"
	KeyV Keycode = "KeyV"
	KeyW Keycode = "KeyW"
	KeyX Keycode = "KeyX"
	KeyY Keycode = "KeyY"
	KeyZ Keycode = "KeyZ"

	KeySpace     Keycode = "Space"
	KeyEnter     Keycode = "Enter"
	KeyEscape    Keycode = "Escape"
	KeyTab       Keycode = "Tab"
	KeyBackspace Keycode = "Backspace"
	KeyShiftL    Keycode = "ShiftLeft"
	KeyShiftR    Keycode = "ShiftRight"
	KeyCtrlL     Keycode = "ControlLeft"
	KeyCtrlR     Keycode = "ControlRight"
	KeyAltL      Keycode = "AltLeft"
	KeyAltR      Keycode = "AltRight"

	KeyLeftBracket  Keycode = "BracketLeft"
	KeyRightBracket Keycode = "BracketRight"
	KeyQuote        Keycode = "Quote"
	KeyEqual        Keycode = "Equal"
	KeyComma        Keycode = "Comma"
	KeyKpEqual      Keycode = "NumpadEqual"
	KeyKpComma      Keycode = "NumpadComma"

	KeyF1  Keycode = "F1"
	KeyF2  Keycode = "F2"
	KeyF3  Keycode = "F3"
	KeyF4  Keycode = "F4"
	KeyF9  Keycode = "F9"
	KeyF10 Keycode = "F10"

	KeyVolumeMute Keycode = "VolumeMute"
	KeyVolumeUp   Keycode = "VolumeUp"
	KeyVolumeDown Keycode = "VolumeDown"
)

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "Left"
	ButtonRight  Button = "Right"
	ButtonMiddle Button = "Middle"
)

// SkipKeys are dropped at the producer boundary and never enter the
// bus. Media keys generate events on some drivers even when the user
// never touched them.
var SkipKeys = []Keycode{KeyVolumeMute, KeyVolumeUp, KeyVolumeDown}

// KeySet is a set of keycodes with the membership and ordering helpers
// the aggregator and the checker both need.
type KeySet map[Keycode]struct{}

// NewKeySet builds a set from the given keys.
func NewKeySet(keys ...Keycode) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Contains reports whether k is in the set.
func (s KeySet) Contains(k Keycode) bool {
	_, ok := s[k]
	return ok
}

// Skippable reports whether the key is on the producer skip list.
func Skippable(k Keycode) bool {
	for _, s := range SkipKeys {
		if s == k {
			return true
		}
	}
	return false
}
