package input

// Cue is an audible notification class. The engine raises a distinct
// cue per condition so a user wearing a headset is notified even when
// nothing is on screen.
type Cue int

const (
	CueCaptureStarted Cue = iota + 1
	CueCaptureStartedWithInference
	CueCaptureFinished
	CueCaptureFailed
	CueModelControlStarted
	CueModelControlStopped
	CueInferenceFailed
	CueBadStartKey
)

// Notifier plays audible cues. The audio backend lives outside the
// core; the engine only names the cue points.
type Notifier interface {
	Play(Cue)
}

// NopNotifier discards all cues.
type NopNotifier struct{}

func (NopNotifier) Play(Cue) {}
