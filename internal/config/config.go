// Package config loads and validates the capture configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tracecap/internal/input"
)

// Config is the full capture configuration.
type Config struct {
	// TargetFPS is the video frame rate the sampler runs at.
	TargetFPS float64 `yaml:"target_fps"`

	// OutputDir is the directory session artifacts are written under.
	OutputDir string `yaml:"output_dir"`

	// ReEnableKey re-arms model control while it is stopped. Any
	// other physical key press stops model control.
	ReEnableKey string `yaml:"re_enable_key,omitempty"`

	// VoiceKey is the push-to-talk key the voice listener watches.
	VoiceKey string `yaml:"voice_key,omitempty"`

	// Hotkeys are excluded from pressed-key snapshots and from the
	// checker's key replay.
	Hotkeys []string `yaml:"hotkeys,omitempty"`

	// SuppressWindow is the number of frames after a model-control
	// toggle during which system-space mismatches are not reported.
	SuppressWindow int `yaml:"suppress_window,omitempty"`

	// Inference configures the model round trip. Disabled when the
	// address is empty.
	Inference InferenceConfig `yaml:"inference,omitempty"`

	// Session metadata recorded into every artifact.
	Env  string `yaml:"env"`
	User string `yaml:"user"`
	Task string `yaml:"task"`

	// DatabasePath is where session findings are persisted. Defaults
	// to findings.db inside OutputDir.
	DatabasePath string `yaml:"database_path,omitempty"`
}

// InferenceConfig configures the inference round trip.
type InferenceConfig struct {
	// Address is the host:port of the model action server.
	Address string `yaml:"address,omitempty"`

	// FrameWidth and FrameHeight are the dimensions of the frames
	// sent for inference.
	FrameWidth  int `yaml:"frame_width,omitempty"`
	FrameHeight int `yaml:"frame_height,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TargetFPS:      20,
		OutputDir:      "captures",
		ReEnableKey:    string(input.KeyLeftBracket),
		VoiceKey:       string(input.KeyQuote),
		SuppressWindow: 5,
		Env:            "desktop",
	}
}

// Load reads a config file, layering it over the defaults. Unknown
// fields are rejected so typos fail loudly.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and key names.
func (c Config) Validate() error {
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive, got %v", c.TargetFPS)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.SuppressWindow < 0 {
		return fmt.Errorf("suppress_window must not be negative, got %d", c.SuppressWindow)
	}
	if c.Inference.Address != "" {
		if c.Inference.FrameWidth <= 0 || c.Inference.FrameHeight <= 0 {
			return fmt.Errorf("inference frame dimensions must be positive when an address is set")
		}
	}
	return nil
}

// HotkeySet returns the configured hotkeys as a key set.
func (c Config) HotkeySet() input.KeySet {
	keys := make([]input.Keycode, len(c.Hotkeys))
	for i, k := range c.Hotkeys {
		keys[i] = input.Keycode(k)
	}
	return input.NewKeySet(keys...)
}

// Database returns the findings database path, defaulting into
// OutputDir.
func (c Config) Database() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return c.OutputDir + "/findings.db"
}
