package check

import "fmt"

// Severity grades a finding. Nothing the checker finds is ever fatal:
// errors are reported to the sink and the session still saves.
type Severity int

const (
	// SeverityWarning marks findings with a known benign cause, like
	// single-event timeline jitter across a frame boundary.
	SeverityWarning Severity = iota + 1
	// SeverityError marks genuine consistency violations.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Code categorizes a finding.
type Code string

const (
	CodeFPSMismatch          Code = "FPS_MISMATCH"
	CodeFrameCountMismatch   Code = "FRAME_COUNT_MISMATCH"
	CodeAnnotationCount      Code = "ANNOTATION_COUNT_MISMATCH"
	CodeTimeBasedCount       Code = "TIME_BASED_COUNT_MISMATCH"
	CodeTimelineOrder        Code = "TIMELINE_OUT_OF_ORDER"
	CodeUserKeysMismatch     Code = "USER_KEYS_MISMATCH"
	CodeSystemKeysMismatch   Code = "SYSTEM_KEYS_MISMATCH"
	CodeUserButtonsMismatch  Code = "USER_BUTTONS_MISMATCH"
	CodeSystemButtonsMism    Code = "SYSTEM_BUTTONS_MISMATCH"
	CodeMouseDeltaMismatch   Code = "MOUSE_DELTA_MISMATCH"
	CodeMouseScrollMismatch  Code = "MOUSE_SCROLL_MISMATCH"
	CodeMousePosMismatch     Code = "MOUSE_POS_MISMATCH"
	CodeFrameOverlap         Code = "FRAME_OVERLAP"
	CodeUserKeysDuringModel  Code = "USER_KEYS_DURING_MODEL_CONTROL"
	CodeSystemKeysNoModel    Code = "SYSTEM_KEYS_WITHOUT_MODEL_CONTROL"
)

// Finding is one consistency-checker result. Frame is -1 for
// session-level findings.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Frame    int      `json:"frame"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Frame >= 0 {
		return fmt.Sprintf("[%s] %s (frame %d): %s", f.Severity, f.Code, f.Frame, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Code, f.Message)
}

// Errors filters the findings down to error severity.
func Errors(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}
