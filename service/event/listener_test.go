package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/schedsim/internal/logging"
	"github.com/viant/schedsim/service/messaging/memory"
)

func TestListener(t *testing.T) {
	publisher := NewPublisher[string](memory.NewQueue[Event[string]](memory.DefaultConfig()))
	var mu sync.Mutex
	var received []string
	got := make(chan struct{}, 10)
	listener := NewListener[string](publisher, func(e *Event[string]) {
		mu.Lock()
		received = append(received, e.Type()+":"+e.Data)
		mu.Unlock()
		got <- struct{}{}
	}, logging.Discard())
	listener.Start(context.Background())
	listener.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{ProcessID: 1, Name: "p1", EventType: TypeSubmitted}, "a")))
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{ProcessID: 1, Name: "p1", EventType: TypeTerminated}, "b")))
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	listener.Stop()
	listener.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"submitted:a", "terminated:b"}, received)
}

func TestListener_HandlerPanic(t *testing.T) {
	publisher := NewPublisher[int](memory.NewQueue[Event[int]](memory.DefaultConfig()))
	got := make(chan int, 2)
	listener := NewListener[int](publisher, func(e *Event[int]) {
		if e.Data == 0 {
			panic("zero")
		}
		got <- e.Data
	}, logging.Discard())
	listener.Start(context.Background())
	defer listener.Stop()

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{EventType: TypeDispatched}, 0)))
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{EventType: TypeDispatched}, 7)))
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("listener did not survive handler panic")
	}
}

func TestListener_DeadLettersFailingEvent(t *testing.T) {
	queue := memory.NewQueue[Event[int]](memory.Config{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetter: true, QueueBuffer: 10})
	publisher := NewPublisher[int](queue)
	var mu sync.Mutex
	attempts := map[int]int{}
	listener := NewListener[int](publisher, func(e *Event[int]) {
		mu.Lock()
		attempts[e.Data]++
		mu.Unlock()
		if e.Data == 0 {
			panic("zero")
		}
	}, logging.Discard())
	listener.Start(context.Background())
	defer listener.Stop()

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{EventType: TypeEvicted}, 0)))
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{EventType: TypeEvicted}, 5)))
	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts[0], "first delivery plus two retries")
	assert.Equal(t, 1, attempts[5], "acknowledged events are not redelivered")
}
