// Package session wires the event bus, aggregator, sampler, inference
// coordinator, and checker into one recording lifecycle.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tracecap/internal/annotate"
	"github.com/roach88/tracecap/internal/bus"
	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/check"
	"github.com/roach88/tracecap/internal/config"
	"github.com/roach88/tracecap/internal/inference"
	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/lagchan"
	"github.com/roach88/tracecap/internal/report"
	"github.com/roach88/tracecap/internal/state"
	"github.com/roach88/tracecap/internal/timeline"
)

// wired enforces one engine per process. The bus's serialization
// guarantee only holds with one consumer, so a second Wire is a
// programming error, not a recoverable condition.
var wired atomic.Bool

// ErrAlreadyRunning is returned when Run is called while a recording
// is in progress.
var ErrAlreadyRunning = fmt.Errorf("capture already running")

// badStartKeys are keys that, held at recording start, indicate the
// start chord has not been fully released yet. Recording with one of
// these down produces artifacts that begin with phantom input.
var badStartKeys = input.NewKeySet(
	input.KeyEqual, input.KeyComma, input.KeyKpEqual, input.KeyKpComma,
)

// Options configures Wire.
type Options struct {
	Config   config.Config
	Pipeline capture.Pipeline
	// Platform performs real OS injection. Nil means feedback-only
	// simulation.
	Platform state.Simulator
	// Prober polls live key state at recording start. Optional.
	Prober   capture.KeyProber
	Notifier input.Notifier
	Sink     *report.Sink
	// Store persists session rows and findings. Optional.
	Store *report.Store
	// Dial opens the inference connection. Defaults to TCP.
	Dial   func(address string) (net.Conn, error)
	Logger *slog.Logger

	AppVersion string
	GitCommit  string
}

// Result is what one finished recording produced.
type Result struct {
	SessionID    uuid.UUID
	Dir          string
	ArtifactPath string
	Findings     []check.Finding
	Stats        capture.PipelineStats
	Latency      inference.LatencyStats
}

// Capture owns one process's recording engine. Construct with Wire,
// run recordings with Run.
type Capture struct {
	cfg      config.Config
	st       *state.InputState
	tl       *timeline.Timeline
	bus      *bus.Bus
	sampler  *capture.Sampler
	pipeline capture.Pipeline
	prober   capture.KeyProber
	notifier input.Notifier
	sink     *report.Sink
	store    *report.Store
	dial     func(address string) (net.Conn, error)
	logger   *slog.Logger

	appVersion string
	gitCommit  string

	running atomic.Bool

	mu     sync.Mutex
	frames []capture.InputFrame
}

// Wire builds the engine. Panics on a second call in the same
// process.
func Wire(opts Options) *Capture {
	if !wired.CompareAndSwap(false, true) {
		panic("session: Wire called twice, one capture engine per process")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = input.NopNotifier{}
	}
	if opts.Sink == nil {
		opts.Sink = report.NewSink()
	}
	if opts.Dial == nil {
		opts.Dial = func(address string) (net.Conn, error) {
			return net.DialTimeout("tcp", address, 5*time.Second)
		}
	}

	withInference := opts.Config.Inference.Address != ""

	st := state.New(state.Options{
		ReEnableKey: input.Keycode(opts.Config.ReEnableKey),
		Hotkeys:     opts.Config.HotkeySet(),
		Notifier:    opts.Notifier,
		Logger:      opts.Logger,
	})
	tl := timeline.New()
	b := bus.Start(bus.Options{
		State:         st,
		Timeline:      tl,
		WithInference: withInference,
		Logger:        opts.Logger,
	})
	// The feedback injector needs the bus, so it is bound after.
	st.SetSimulator(bus.NewInjector(b, opts.Platform))

	return &Capture{
		cfg:        opts.Config,
		st:         st,
		tl:         tl,
		bus:        b,
		sampler:    capture.NewSampler(st, tl, b.Gamepads(), opts.Logger),
		pipeline:   opts.Pipeline,
		prober:     opts.Prober,
		notifier:   opts.Notifier,
		sink:       opts.Sink,
		store:      opts.Store,
		dial:       opts.Dial,
		logger:     opts.Logger,
		appVersion: opts.AppVersion,
		gitCommit:  opts.GitCommit,
	}
}

// Bus returns the device event bus for producers to submit into.
func (c *Capture) Bus() *bus.Bus {
	return c.bus
}

// Sink returns the findings sink.
func (c *Capture) Sink() *report.Sink {
	return c.sink
}

// Close drains and stops the event bus. The engine cannot record
// again afterwards.
func (c *Capture) Close() {
	c.bus.Close()
}

// ToggleModelControl flips model control from the control surface, the
// same edge-triggered way a physical key press does.
func (c *Capture) ToggleModelControl() {
	flag := c.st.InferenceFlag()
	if flag == nil {
		return
	}
	if flag.TryTransition(true, false) {
		c.st.LiftSimulatedKeys(false)
		c.notifier.Play(input.CueModelControlStopped)
		return
	}
	if flag.TryTransition(false, true) {
		c.notifier.Play(input.CueModelControlStarted)
	}
}

// Stop ends the running recording by stopping the video pipeline. Run
// then finishes the session and returns.
func (c *Capture) Stop() error {
	if !c.running.Load() {
		return nil
	}
	return c.pipeline.Stop()
}

// Run performs one complete recording: start checks, frame
// collection until the pipeline ends, then the finish sequence
// (consistency check, artifact build, persistence). Blocks for the
// whole session. A mid-session inference stream failure stops the
// pipeline and fails the session; the partial artifact is still
// written.
func (c *Capture) Run(task string) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	if task == "" {
		task = c.cfg.Task
	}

	if err := c.checkStartKeys(); err != nil {
		c.notifier.Play(input.CueBadStartKey)
		return nil, err
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	dir := filepath.Join(c.cfg.OutputDir, sessionID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}

	c.st.Reset()
	c.sampler.DoubleCheckKeyState(c.prober)

	withInference := c.cfg.Inference.Address != ""
	flag := state.NewFlag(withInference)
	c.st.SetInferenceFlag(flag)
	defer c.st.SetInferenceFlag(nil)

	start := c.tl.Start()

	voice := capture.ListenVoice(c.bus.Registry(), input.Keycode(c.cfg.VoiceKey))

	var coord *inference.Coordinator
	var coordDone chan error
	var frameSender *lagchan.Sender[inference.Frame]
	if withInference {
		conn, err := c.dial(c.cfg.Inference.Address)
		if err != nil {
			voice.Stop()
			return nil, fmt.Errorf("dial inference: %w", err)
		}
		sender, receiver := lagchan.New[inference.Frame]()
		frameSender = sender
		coord = inference.New(inference.Options{
			Conn:      conn,
			Frames:    receiver,
			Flag:      flag,
			Simulator: c.st.Simulator(),
			Logger:    c.logger,
		})
		coordDone = make(chan error, 1)
		go func() {
			err := coord.Run()
			coordDone <- err
			if err != nil {
				// A recording with inference cannot outlive its model
				// stream. Stopping the pipeline ends the session now
				// instead of at the next manual stop.
				if stopErr := c.pipeline.Stop(); stopErr != nil {
					c.logger.Error("stop pipeline after inference failure", "error", stopErr)
				}
			}
		}()
		c.notifier.Play(input.CueCaptureStartedWithInference)
	} else {
		c.notifier.Play(input.CueCaptureStarted)
	}

	c.mu.Lock()
	c.frames = c.frames[:0]
	c.mu.Unlock()

	var frameID atomic.Int32
	stats, runErr := c.pipeline.Run(capture.PipelineEvents{
		OnFrame: func() {
			frame := c.sampler.Sample()
			c.mu.Lock()
			c.frames = append(c.frames, frame)
			c.mu.Unlock()
		},
		OnInferenceSample: func(data []byte, width, height int) {
			if frameSender == nil || !flag.Get() {
				return
			}
			frameSender.Send(inference.Frame{
				ID:     frameID.Add(1),
				Width:  int32(width),
				Height: int32(height),
				Data:   data,
			})
		},
	})

	voiceEvents := voice.Stop()
	c.st.LiftSimulatedKeys(true)

	var latency inference.LatencyStats
	var inferErr error
	if coord != nil {
		coord.Stop()
		if err := <-coordDone; err != nil {
			inferErr = err
			c.logger.Error("inference stream ended with error", "error", err)
			c.notifier.Play(input.CueInferenceFailed)
		}
		latency = coord.Stats()
		frameSender.Drop()
	}

	if runErr != nil {
		c.notifier.Play(input.CueCaptureFailed)
		return nil, fmt.Errorf("video pipeline: %w", runErr)
	}

	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	if err := fixFirstFrame(frames, start); err != nil {
		c.notifier.Play(input.CueCaptureFailed)
		return nil, err
	}

	result, err := c.finish(sessionID, dir, task, frames, voiceEvents, stats, start)
	if err != nil {
		c.notifier.Play(input.CueCaptureFailed)
		return nil, err
	}
	result.Latency = latency
	if inferErr != nil {
		// The partial artifact above is kept for inspection, but the
		// session itself failed.
		return nil, fmt.Errorf("inference stream: %w", inferErr)
	}
	c.notifier.Play(input.CueCaptureFinished)
	return result, nil
}

// checkStartKeys rejects a start while a bad start key is held. The
// prober is optional; without one the check is skipped.
func (c *Capture) checkStartKeys() error {
	if c.prober == nil {
		return nil
	}
	for key := range badStartKeys {
		pressed, err := c.prober.IsPressed(key)
		if err != nil {
			continue
		}
		if pressed {
			return fmt.Errorf("cannot start recording while %s is held down", key)
		}
	}
	return nil
}

// fixFirstFrame handles the known race where the producer threads come
// up just before the timeline start is stamped: a single event may
// carry a timestamp before start. One is dropped; two means the start
// sequence itself is broken.
func fixFirstFrame(frames []capture.InputFrame, start time.Time) error {
	if len(frames) == 0 || len(frames[0].Timeline) == 0 {
		return nil
	}
	tlEvents := frames[0].Timeline
	if !tlEvents[0].Time.Before(start) {
		return nil
	}
	if len(tlEvents) > 1 && tlEvents[1].Time.Before(start) {
		return fmt.Errorf("multiple input events timestamped before recording start")
	}
	frames[0].Timeline = tlEvents[1:]
	return nil
}

func (c *Capture) finish(sessionID uuid.UUID, dir, task string, frames []capture.InputFrame, voiceEvents []capture.VoiceEvent, stats capture.PipelineStats, start time.Time) (*Result, error) {
	cfg := check.DefaultConfig(c.cfg.TargetFPS, c.cfg.HotkeySet())
	cfg.SuppressWindow = c.cfg.SuppressWindow

	elapsed := stats.Elapsed
	measuredFPS := 0.0
	if elapsed > 0 {
		measuredFPS = float64(stats.FrameCount) / elapsed.Seconds()
	}
	findings := check.Run(cfg, check.Input{
		Frames: frames,
		Video: check.VideoStats{
			FrameCount: stats.FrameCount,
			FPS:        measuredFPS,
			Duration:   elapsed,
		},
		EncoderFrames: stats.FrameCount,
		WallDuration:  elapsed,
		StartTime:     start,
	})
	c.sink.Add(sessionID, findings...)
	for _, f := range findings {
		c.logger.Warn("consistency finding", "session", sessionID, "finding", f.String())
	}

	meta := annotate.Metadata{
		SessionID:       sessionID.String(),
		Env:             c.cfg.Env,
		User:            c.cfg.User,
		Task:            task,
		AppVersion:      c.appVersion,
		GitCommit:       c.gitCommit,
		TargetFPS:       c.cfg.TargetFPS,
		EncoderFrames:   stats.FrameCount,
		StartTimeUnixNs: start.UnixNano(),
		WallDurationNs:  elapsed.Nanoseconds(),
	}
	artifact, err := annotate.Build(frames, meta, start, voiceEvents)
	if err != nil {
		return nil, fmt.Errorf("build annotation: %w", err)
	}
	if err := artifact.Save(dir); err != nil {
		return nil, err
	}

	if c.store != nil {
		ctx := context.Background()
		rec := report.SessionRecord{
			ID:         sessionID,
			StartedAt:  start,
			Duration:   elapsed,
			Env:        c.cfg.Env,
			User:       c.cfg.User,
			Task:       task,
			TargetFPS:  c.cfg.TargetFPS,
			FrameCount: stats.FrameCount,
			AppVersion: c.appVersion,
		}
		if err := c.store.WriteSession(ctx, rec); err != nil {
			c.logger.Error("persist session row", "error", err)
		} else if err := c.store.WriteFindings(ctx, sessionID, findings); err != nil {
			c.logger.Error("persist findings", "error", err)
		}
	}

	return &Result{
		SessionID:    sessionID,
		Dir:          dir,
		ArtifactPath: filepath.Join(dir, annotate.ArtifactFileName),
		Findings:     findings,
		Stats:        stats,
	}, nil
}
