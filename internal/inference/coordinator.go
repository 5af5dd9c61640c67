package inference

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/lagchan"
	"github.com/roach88/tracecap/internal/state"
)

// writerJoinTimeout bounds how long Stop waits for the frame sender to
// flush before abandoning it. A timeout is a warning, never a session
// failure.
const writerJoinTimeout = 2 * time.Second

// LatencyStats summarizes observed round-trip latencies.
type LatencyStats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average round-trip latency.
func (s LatencyStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Coordinator runs the model round trip over one duplex byte stream:
// a send loop drains the lag channel and writes frames, a receive loop
// reads actions and injects them. Correlation between the two is the
// shared pending map keyed by frame id.
type Coordinator struct {
	conn   net.Conn
	frames *lagchan.Receiver[Frame]
	flag   *state.Flag
	sim    state.Simulator
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[int32]time.Time

	statsMu sync.Mutex
	stats   LatencyStats

	stop     chan struct{}
	stopOnce sync.Once

	// Last key/button sets the model asked for, used to diff the next
	// action into press/release injections.
	prevKeys    []string
	prevButtons []string
}

// Options configures a Coordinator.
type Options struct {
	Conn net.Conn
	// Frames is the receiving half of the lag channel fed by the video
	// pipeline's inference callback.
	Frames *lagchan.Receiver[Frame]
	// Flag is the shared model-control flag. Actions received while it
	// is off are discarded and the diff state cleared, so a disabled
	// model cannot leave stuck inputs.
	Flag      *state.Flag
	Simulator state.Simulator
	Logger    *slog.Logger
}

// New creates a coordinator. Run starts the loops.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Simulator == nil {
		opts.Simulator = state.NopSimulator{}
	}
	return &Coordinator{
		conn:    opts.Conn,
		frames:  opts.Frames,
		flag:    opts.Flag,
		sim:     opts.Simulator,
		logger:  opts.Logger,
		pending: make(map[int32]time.Time),
		stop:    make(chan struct{}),
	}
}

// Run blocks until the stream fails or Stop is called. The send loop
// runs on its own goroutine; the receive loop runs here. Returns nil
// on a cooperative stop, the stream error otherwise.
func (c *Coordinator) Run() error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.sendLoop()
	}()

	err := c.recvLoop()

	// Shut the writer down: closing the lag channel receiver is the
	// writer's stop signal, then give it a bounded grace period.
	c.frames.Close()
	select {
	case <-writerDone:
		c.logger.Debug("frame sender shut down")
	case <-time.After(writerJoinTimeout):
		c.logger.Warn("frame sender shutdown timed out", "timeout", writerJoinTimeout)
	}

	stats := c.Stats()
	c.logger.Info("inference round-trip finished",
		"actions", stats.Count, "mean_latency", stats.Mean(), "max_latency", stats.Max)

	select {
	case <-c.stop:
		return nil
	default:
		return err
	}
}

// Stop signals both loops to exit. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		// Unblock the reader; the writer unblocks via the lag channel.
		_ = c.conn.SetReadDeadline(time.Now())
	})
}

// Stats returns a copy of the latency statistics so far.
func (c *Coordinator) Stats() LatencyStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Coordinator) sendLoop() {
	for {
		frame, err := c.frames.Recv()
		if err != nil {
			c.logger.Debug("frame channel closed, exiting sender")
			return
		}
		c.pendingMu.Lock()
		c.pending[frame.ID] = time.Now()
		c.pendingMu.Unlock()

		if err := WriteMessage(c.conn, frame); err != nil {
			c.logger.Error("failed to write frame", "id", frame.ID, "error", err)
			return
		}
		c.logger.Debug("sent inference frame", "id", frame.ID, "bytes", len(frame.Data))
	}
}

func (c *Coordinator) recvLoop() error {
	for {
		var action Action
		if err := ReadMessage(c.conn, &action); err != nil {
			select {
			case <-c.stop:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				c.logger.Debug("inference stream closed by remote")
				return err
			}
			return fmt.Errorf("read action: %w", err)
		}
		c.recordLatency(action.ID)
		c.applyAction(action)
	}
}

func (c *Coordinator) recordLatency(id int32) {
	c.pendingMu.Lock()
	start, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("received action with no matching frame", "id", id)
		return
	}
	elapsed := time.Since(start)
	c.statsMu.Lock()
	c.stats.Count++
	c.stats.Total += elapsed
	if elapsed > c.stats.Max {
		c.stats.Max = elapsed
	}
	c.statsMu.Unlock()
	c.logger.Debug("action round trip", "id", id, "latency", elapsed)
}

// applyAction turns the action into injections when the model holds
// control. Keys and buttons are level-encoded on the wire (the full
// currently-down set), so they diff against the previous action to
// produce press/release edges.
func (c *Coordinator) applyAction(a Action) {
	if !c.flag.Get() {
		c.logger.Debug("model control disabled, clearing model key state", "id", a.ID)
		c.prevKeys = nil
		c.prevButtons = nil
		return
	}

	c.prevKeys = diffInject(a.Keys, c.prevKeys,
		func(k string) { c.sim.PressKey(input.Keycode(k)) },
		func(k string) { c.sim.ReleaseKey(input.Keycode(k)) })

	if a.Mouse != nil {
		c.applyMouse(*a.Mouse)
	}
}

func (c *Coordinator) applyMouse(m MouseAction) {
	c.prevButtons = diffInject(m.ButtonsDown, c.prevButtons,
		func(b string) { c.sim.PressButton(input.Button(b)) },
		func(b string) { c.sim.ReleaseButton(input.Button(b)) })

	switch {
	case m.MouseDeltaPx != nil:
		c.sim.MoveRelative(*m.MouseDeltaPx)
	case m.MousePos != nil:
		c.sim.MoveAbsolute(*m.MousePos)
	}
	if m.ScrollDeltaPx != nil && !m.ScrollDeltaPx.IsZero() {
		c.sim.Scroll(*m.ScrollDeltaPx)
	}
}

// diffInject presses everything in want that is missing from prev and
// releases everything in prev that dropped out of want, then returns
// want as the new prev.
func diffInject(want, prev []string, press, release func(string)) []string {
	for _, w := range want {
		if !contains(prev, w) {
			press(w)
		}
	}
	for _, p := range prev {
		if !contains(want, p) {
			release(p)
		}
	}
	return want
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
