package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/testutil"
)

func queueEvent(clock *testutil.Clock, key input.Keycode) input.DeviceEvent {
	return input.DeviceEvent{
		Time:    clock.Next(),
		Payload: input.KeyboardInput{Key: key, Pressed: true},
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := newEventQueue()
	clock := testutil.NewFrameClock(1000)

	keys := []input.Keycode{input.KeyA, input.KeyB, input.KeyC}
	for _, k := range keys {
		require.True(t, q.Enqueue(queueEvent(clock, k)))
	}

	for _, want := range keys {
		ev, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Payload.(input.KeyboardInput).Key)
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := newEventQueue()
	clock := testutil.NewFrameClock(1000)

	got := make(chan input.DeviceEvent, 1)
	go func() {
		ev, _ := q.Dequeue()
		got <- ev
	}()

	ev := queueEvent(clock, input.KeySpace)
	q.Enqueue(ev)

	received := <-got
	assert.Equal(t, ev.Payload, received.Payload)
}

func TestQueue_CloseDrainsRemainingEvents(t *testing.T) {
	q := newEventQueue()
	clock := testutil.NewFrameClock(1000)

	q.Enqueue(queueEvent(clock, input.KeyA))
	q.Enqueue(queueEvent(clock, input.KeyB))
	q.Close()

	_, ok := q.Dequeue()
	assert.True(t, ok, "events enqueued before close must still drain")
	_, ok = q.Dequeue()
	assert.True(t, ok)
	_, ok = q.Dequeue()
	assert.False(t, ok, "drained closed queue reports not-ok")

	assert.False(t, q.Enqueue(queueEvent(clock, input.KeyC)), "enqueue after close fails")
}

func TestQueue_ManyProducersNothingLost(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const perProducer = 500

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock := testutil.NewFrameClock(100000)
			for j := 0; j < perProducer; j++ {
				q.Enqueue(queueEvent(clock, input.KeyA))
			}
		}()
	}

	consumed := 0
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			if _, ok := q.Dequeue(); !ok {
				return
			}
			consumed++
		}
	}()

	wg.Wait()
	q.Close()
	<-consumerDone

	assert.Equal(t, producers*perProducer, consumed)
}
