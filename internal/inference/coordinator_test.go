package inference

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/lagchan"
	"github.com/roach88/tracecap/internal/state"
)

// fakeModel reads frames on the remote end of the pipe and answers each
// one with the action produced by respond. It exits when the stream or
// the respond func gives out.
func fakeModel(t *testing.T, conn net.Conn, respond func(Frame) (Action, bool)) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame Frame
			if err := ReadMessage(conn, &frame); err != nil {
				return
			}
			action, ok := respond(frame)
			if !ok {
				return
			}
			if err := WriteMessage(conn, action); err != nil {
				return
			}
		}
	}()
	return done
}

type coordFixture struct {
	coord   *Coordinator
	sender  *lagchan.Sender[Frame]
	rec     *state.Recorder
	flag    *state.Flag
	remote  net.Conn
	runDone chan error
}

func startCoordinator(t *testing.T, flagOn bool) *coordFixture {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	sender, receiver := lagchan.New[Frame]()
	rec := &state.Recorder{}
	flag := state.NewFlag(flagOn)
	coord := New(Options{
		Conn:      local,
		Frames:    receiver,
		Flag:      flag,
		Simulator: rec,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- coord.Run() }()

	return &coordFixture{
		coord:   coord,
		sender:  sender,
		rec:     rec,
		flag:    flag,
		remote:  remote,
		runDone: runDone,
	}
}

func (f *coordFixture) stop(t *testing.T) {
	t.Helper()
	f.coord.Stop()
	select {
	case err := <-f.runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinator_RoundTripRecordsLatency(t *testing.T) {
	fx := startCoordinator(t, true)
	modelDone := fakeModel(t, fx.remote, func(frame Frame) (Action, bool) {
		return Action{ID: frame.ID}, frame.ID < 2
	})

	fx.sender.Send(Frame{ID: 1, Data: []byte{0xab}})
	require.Eventually(t, func() bool {
		return fx.coord.Stats().Count == 1
	}, 5*time.Second, 10*time.Millisecond)

	fx.sender.Send(Frame{ID: 2, Data: []byte{0xcd}})
	<-modelDone

	fx.stop(t)
	stats := fx.coord.Stats()
	// Frame 2 got no answer, so only one round trip counts.
	assert.Equal(t, 1, stats.Count)
	assert.Greater(t, stats.Total, time.Duration(0))
	assert.GreaterOrEqual(t, stats.Max, stats.Mean())
}

func TestCoordinator_DiffInjectsKeyEdges(t *testing.T) {
	fx := startCoordinator(t, true)
	actions := []Action{
		{ID: 1, Keys: []string{"KeyW", "KeyA"}},
		{ID: 2, Keys: []string{"KeyW", "KeyD"}},
		{ID: 3, Keys: nil},
	}
	fakeModel(t, fx.remote, func(frame Frame) (Action, bool) {
		return actions[frame.ID-1], true
	})

	for id := int32(1); id <= 3; id++ {
		fx.sender.Send(Frame{ID: id})
		require.Eventually(t, func() bool {
			return fx.coord.Stats().Count == int(id)
		}, 5*time.Second, 10*time.Millisecond)
	}
	fx.stop(t)

	assert.Equal(t, []state.SimOp{
		{Op: "key", Key: input.Keycode("KeyW"), Pressed: true},
		{Op: "key", Key: input.Keycode("KeyA"), Pressed: true},
		// "KeyW" held across actions 1 and 2: no duplicate press.
		{Op: "key", Key: input.Keycode("KeyD"), Pressed: true},
		{Op: "key", Key: input.Keycode("KeyA"), Pressed: false},
		{Op: "key", Key: input.Keycode("KeyW"), Pressed: false},
		{Op: "key", Key: input.Keycode("KeyD"), Pressed: false},
	}, fx.rec.Ops())
}

func TestCoordinator_MouseInjection(t *testing.T) {
	fx := startCoordinator(t, true)
	delta := input.Vec2{X: 12, Y: -4}
	scroll := input.Vec2{Y: 120}
	fakeModel(t, fx.remote, func(frame Frame) (Action, bool) {
		return Action{
			ID: frame.ID,
			Mouse: &MouseAction{
				ButtonsDown:   []string{"Left"},
				MouseDeltaPx:  &delta,
				ScrollDeltaPx: &scroll,
			},
		}, true
	})

	fx.sender.Send(Frame{ID: 1})
	require.Eventually(t, func() bool {
		return fx.coord.Stats().Count == 1
	}, 5*time.Second, 10*time.Millisecond)
	fx.stop(t)

	assert.Equal(t, []state.SimOp{
		{Op: "button", Button: input.Button("Left"), Pressed: true},
		{Op: "move_rel", Vec: delta},
		{Op: "scroll", Vec: scroll},
	}, fx.rec.Ops())
}

func TestCoordinator_FlagOffDiscardsActions(t *testing.T) {
	fx := startCoordinator(t, true)
	fakeModel(t, fx.remote, func(frame Frame) (Action, bool) {
		return Action{ID: frame.ID, Keys: []string{"KeyW"}}, true
	})

	fx.sender.Send(Frame{ID: 1})
	require.Eventually(t, func() bool {
		return fx.coord.Stats().Count == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Control handed back to the user: the next action must inject
	// nothing, and the diff state resets so re-enabling starts clean.
	require.True(t, fx.flag.TryTransition(true, false))
	fx.sender.Send(Frame{ID: 2})
	require.Eventually(t, func() bool {
		return fx.coord.Stats().Count == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, fx.flag.TryTransition(false, true))
	fx.sender.Send(Frame{ID: 3})
	require.Eventually(t, func() bool {
		return fx.coord.Stats().Count == 3
	}, 5*time.Second, 10*time.Millisecond)
	fx.stop(t)

	assert.Equal(t, []state.SimOp{
		{Op: "key", Key: input.Keycode("KeyW"), Pressed: true},
		// Pressed again after the off interval cleared the diff state.
		{Op: "key", Key: input.Keycode("KeyW"), Pressed: true},
	}, fx.rec.Ops())
}

func TestCoordinator_UnmatchedActionIDSkipsStats(t *testing.T) {
	fx := startCoordinator(t, true)
	fakeModel(t, fx.remote, func(frame Frame) (Action, bool) {
		// Answer with an id the coordinator never sent.
		return Action{ID: frame.ID + 100}, true
	})

	fx.sender.Send(Frame{ID: 1})
	// The bogus answer still reaches applyAction; give it a moment.
	time.Sleep(100 * time.Millisecond)
	fx.stop(t)
	assert.Equal(t, 0, fx.coord.Stats().Count)
}

func TestCoordinator_RemoteCloseReturnsError(t *testing.T) {
	fx := startCoordinator(t, true)
	require.NoError(t, fx.remote.Close())

	select {
	case err := <-fx.runDone:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not exit after remote close")
	}
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	fx := startCoordinator(t, true)
	fx.coord.Stop()
	fx.coord.Stop()
	select {
	case err := <-fx.runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}
