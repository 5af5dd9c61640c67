package capture

import (
	"errors"
	"time"
)

// ErrNoBackend is returned on targets without a window-capture
// backend.
var ErrNoBackend = errors.New("capture: no video pipeline backend on this platform")

// PipelineEvents are the callbacks the video collaborator fires into
// the core. Both run on the pipeline's own threads.
type PipelineEvents struct {
	// OnFrame fires once per encoded output frame.
	OnFrame func()
	// OnInferenceSample fires with a fixed-size RGB buffer for each
	// inference-rate sample. Absent when inference is disabled.
	OnInferenceSample func(data []byte, width, height int)
}

// PipelineStats are the session-level facts the pipeline reports after
// it finishes.
type PipelineStats struct {
	// FrameCount is the number of frames the encoder produced.
	FrameCount int
	// Elapsed is the wall-clock run time of the pipeline.
	Elapsed time.Duration
}

// Pipeline is the video/encoding collaborator. Run blocks until the
// pipeline ends, either on its own or after Stop.
type Pipeline interface {
	Run(events PipelineEvents) (PipelineStats, error)
	Stop() error
}
