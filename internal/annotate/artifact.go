// Package annotate folds a recorded session into the serializable
// annotation artifact and reads it back.
package annotate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tracecap/internal/input"
)

// SchemaVersion is the artifact schema version, part of the
// compatibility contract: readers reject unrecognized versions rather
// than guess.
const SchemaVersion = 3

// ArtifactFileName is the artifact's file name inside a session
// directory.
const ArtifactFileName = "annotation.json"

// Metadata describes the session the artifact belongs to. String
// fields are NFC-normalized when the artifact is built so that two
// artifacts with visually identical metadata compare byte-equal.
type Metadata struct {
	SessionID  string `json:"session_id"`
	Env        string `json:"env"`
	EnvSubtype string `json:"env_subtype,omitempty"`
	User       string `json:"user"`
	Task       string `json:"task"`
	AppVersion string `json:"app_version"`
	GitCommit  string `json:"git_commit,omitempty"`

	// Session facts the consistency checker needs to re-run later.
	TargetFPS       float64 `json:"target_fps"`
	EncoderFrames   int     `json:"encoder_frames"`
	StartTimeUnixNs int64   `json:"start_time_unix_ns"`
	WallDurationNs  int64   `json:"wall_duration_ns"`
}

func (m Metadata) normalized() Metadata {
	m.Env = norm.NFC.String(m.Env)
	m.EnvSubtype = norm.NFC.String(m.EnvSubtype)
	m.User = norm.NFC.String(m.User)
	m.Task = norm.NFC.String(m.Task)
	return m
}

// MouseActionRecord is the wire shape of a per-frame mouse aggregate.
type MouseActionRecord struct {
	MouseAbsolutePx input.Vec2 `json:"mouse_absolute_px"`
	MouseDeltaPx    input.Vec2 `json:"mouse_delta_px"`
	ScrollDeltaPx   input.Vec2 `json:"scroll_delta_px"`
	ButtonsDown     []string   `json:"buttons_down"`
}

// KeyboardActionRecord lists the keys down during a frame.
type KeyboardActionRecord struct {
	Keys []string `json:"keys"`
}

// LowLevelAction is one space's action for one frame. InControl is the
// provenance flag: true on the user action when the model is not
// driving, true on the system action when it is.
type LowLevelAction struct {
	Mouse     *MouseActionRecord    `json:"mouse,omitempty"`
	Keyboard  *KeyboardActionRecord `json:"keyboard,omitempty"`
	Gamepad   *input.GamepadState   `json:"game_pad,omitempty"`
	InControl bool                  `json:"in_control"`
}

// Input event record types.
const (
	EventKey            = "key"
	EventMouseButton    = "mouse_button"
	EventMouseMove      = "mouse_move"
	EventMouseDelta     = "mouse_delta"
	EventMouseWheel     = "mouse_wheel"
	EventGamepadButton  = "gamepad_button"
	EventGamepadAxis    = "gamepad_axis"
	EventGamepadTrigger = "gamepad_trigger"
)

// InputEventRecord is one raw timeline event with a start-relative
// timestamp. Only the fields for Type are populated.
type InputEventRecord struct {
	TimeNs    uint64      `json:"time_ns"`
	Simulated bool        `json:"simulated"`
	Type      string      `json:"type"`
	Key       string      `json:"key,omitempty"`
	Button    string      `json:"button,omitempty"`
	Pressed   bool        `json:"pressed,omitempty"`
	Vec       *input.Vec2 `json:"vec,omitempty"`
	Axis      string      `json:"axis,omitempty"`
	Value     float32     `json:"value,omitempty"`
}

// FrameAnnotation is one video frame's annotation.
type FrameAnnotation struct {
	FrameTimeNs  uint64             `json:"frame_time_ns"`
	UserAction   LowLevelAction     `json:"user_action"`
	SystemAction LowLevelAction     `json:"system_action"`
	InputEvents  []InputEventRecord `json:"input_events"`
}

// VoiceEventRecord is one push-to-talk transition with a
// start-relative timestamp.
type VoiceEventRecord struct {
	Speaking bool   `json:"speaking"`
	TimeNs   uint64 `json:"time_ns"`
}

// Artifact is the complete serialized session record. Created once at
// session end and never mutated after serialization.
type Artifact struct {
	Version     int                `json:"version"`
	Metadata    Metadata           `json:"metadata"`
	Frames      []FrameAnnotation  `json:"frame_annotations"`
	VoiceEvents []VoiceEventRecord `json:"voice_events"`
}

// Save writes the artifact into dir as ArtifactFileName.
func (a *Artifact) Save(dir string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	path := filepath.Join(dir, ArtifactFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Load reads an artifact file and rejects unknown schema versions.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported artifact version %d (want %d)", a.Version, SchemaVersion)
	}
	return &a, nil
}
