// Package check is the post-capture consistency checker. It replays
// the raw event timeline against the per-frame aggregates and the
// independently measured video file, surfacing drift, overlap, and
// loss after the fact.
//
// The checker is a pure validation pass: it runs once after capture
// stops, never raises a fatal error, and every finding is reported
// while the session proceeds to save regardless.
package check

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/input"
)

// Config tunes the checker.
type Config struct {
	// TargetFPS is the configured capture frame rate.
	TargetFPS float64
	// FPSTolerance is the allowed deviation of the measured rate.
	FPSTolerance float64
	// DurationLeniency is the fractional slack on the time-based frame
	// count (0.02 means ±2%).
	DurationLeniency float64
	// SuppressWindow is how many frames after a model-control toggle
	// system-space mismatches stay suppressed: the model may
	// legitimately have stale actions in flight across the transition.
	SuppressWindow int
	// Hotkeys are excluded from replayed key sets, mirroring their
	// exclusion from sampled frames.
	Hotkeys input.KeySet
}

// DefaultConfig returns the checker configuration used by recording
// sessions.
func DefaultConfig(targetFPS float64, hotkeys input.KeySet) Config {
	return Config{
		TargetFPS:        targetFPS,
		FPSTolerance:     1.0,
		DurationLeniency: 0.02,
		SuppressWindow:   5,
		Hotkeys:          hotkeys,
	}
}

// VideoStats describes the finished video file as measured
// independently of the capture path.
type VideoStats struct {
	// FrameCount is the actual decoded frame count.
	FrameCount int `json:"frame_count"`
	// FPS is the measured average frame rate.
	FPS float64 `json:"fps"`
	// Duration is the container duration.
	Duration time.Duration `json:"duration"`
}

// Input is everything one checker run consumes.
type Input struct {
	Frames []capture.InputFrame
	Video  VideoStats
	// EncoderFrames is how many times the encoder's frame callback
	// fired.
	EncoderFrames int
	// WallDuration is the wall-clock length of the session.
	WallDuration time.Duration
	// StartTime is the recording start instant.
	StartTime time.Time
}

// Run executes every check independently and returns the accumulated
// findings.
func Run(cfg Config, in Input) []Finding {
	var findings []Finding
	findings = append(findings, checkVideoFacts(cfg, in)...)
	findings = append(findings, checkTimeline(cfg, in)...)
	findings = append(findings, checkOverlap(in.Frames)...)
	findings = append(findings, checkModeExclusivity(in.Frames)...)
	return findings
}

// checkVideoFacts covers the fps, frame-count, and duration checks.
func checkVideoFacts(cfg Config, in Input) []Finding {
	var findings []Finding

	if in.Video.FPS < cfg.TargetFPS-cfg.FPSTolerance || in.Video.FPS > cfg.TargetFPS+cfg.FPSTolerance {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeFPSMismatch,
			Frame:    -1,
			Message:  fmt.Sprintf("expected %.0f fps but got %.2f", cfg.TargetFPS, in.Video.FPS),
		})
	}

	if in.Video.FrameCount != in.EncoderFrames {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeFrameCountMismatch,
			Frame:    -1,
			Message: fmt.Sprintf("encoder produced %d frames but the file holds %d",
				in.EncoderFrames, in.Video.FrameCount),
		})
	}

	if in.Video.FrameCount != len(in.Frames) {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeAnnotationCount,
			Frame:    -1,
			Message: fmt.Sprintf("file holds %d frames but %d input frames were recorded",
				in.Video.FrameCount, len(in.Frames)),
		})
	}

	timeBased := math.Round(in.WallDuration.Seconds() * cfg.TargetFPS)
	minCount := int(math.Round(timeBased - timeBased*cfg.DurationLeniency))
	maxCount := int(math.Round(timeBased + timeBased*cfg.DurationLeniency))
	if in.Video.FrameCount < minCount || in.Video.FrameCount > maxCount {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeTimeBasedCount,
			Frame:    -1,
			Message: fmt.Sprintf("expected near %.0f frames from %.2fs of capture but got %d",
				timeBased, in.WallDuration.Seconds(), in.Video.FrameCount),
		})
	}

	return findings
}

// checkOverlap reports every frame where user and system keys are
// simultaneously non-empty. User and model input must be mutually
// exclusive per frame.
func checkOverlap(frames []capture.InputFrame) []Finding {
	var overlapping []int
	for i, frame := range frames {
		if len(frame.UserKeys) > 0 && len(frame.SystemKeys) > 0 {
			overlapping = append(overlapping, i)
		}
	}
	if len(overlapping) == 0 {
		return nil
	}

	findings := []Finding{{
		Severity: SeverityError,
		Code:     CodeFrameOverlap,
		Frame:    -1,
		Message:  fmt.Sprintf("%d frames hold both user and system keys", len(overlapping)),
	}}
	for _, i := range overlapping {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeFrameOverlap,
			Frame:    i,
			Message: fmt.Sprintf("user keys %v and system keys %v on the same frame",
				frames[i].UserKeys, frames[i].SystemKeys),
		})
	}
	return findings
}

// checkModeExclusivity verifies that user keys are empty while the
// model holds control and system keys are empty while it does not.
func checkModeExclusivity(frames []capture.InputFrame) []Finding {
	var findings []Finding
	for i, frame := range frames {
		if frame.InferenceRunning {
			if len(frame.UserKeys) > 0 {
				findings = append(findings, Finding{
					Severity: SeverityError,
					Code:     CodeUserKeysDuringModel,
					Frame:    i,
					Message:  fmt.Sprintf("user keys %v while model control is running", frame.UserKeys),
				})
			}
		} else if len(frame.SystemKeys) > 0 {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Code:     CodeSystemKeysNoModel,
				Frame:    i,
				Message:  fmt.Sprintf("system keys %v while model control is not running", frame.SystemKeys),
			})
		}
	}
	return findings
}
