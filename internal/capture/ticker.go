package capture

import (
	"sync"
	"time"
)

// TickerPipeline drives frame sampling from a wall-clock ticker
// instead of a video encoder. Used for input-only recordings and on
// targets without an encoding backend; the frame cadence matches what
// an encoder at the same rate would produce.
type TickerPipeline struct {
	fps      float64
	duration time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewTickerPipeline runs at fps for at most duration. A zero duration
// runs until Stop.
func NewTickerPipeline(fps float64, duration time.Duration) *TickerPipeline {
	return &TickerPipeline{
		fps:      fps,
		duration: duration,
		stopCh:   make(chan struct{}),
	}
}

// Run fires OnFrame once per tick until the duration elapses or Stop
// is called.
func (p *TickerPipeline) Run(events PipelineEvents) (PipelineStats, error) {
	interval := time.Duration(float64(time.Second) / p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.duration > 0 {
		timer := time.NewTimer(p.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	started := time.Now()
	frames := 0
	for {
		select {
		case <-ticker.C:
			if events.OnFrame != nil {
				events.OnFrame()
			}
			frames++
		case <-deadline:
			return PipelineStats{FrameCount: frames, Elapsed: time.Since(started)}, nil
		case <-p.stopCh:
			return PipelineStats{FrameCount: frames, Elapsed: time.Since(started)}, nil
		}
	}
}

// Stop ends the run. Safe to call more than once.
func (p *TickerPipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	return nil
}
