package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/schedsim/internal/logging"
	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/progress"
	"github.com/viant/schedsim/service/event"
	"github.com/viant/schedsim/service/memory"
	msgmemory "github.com/viant/schedsim/service/messaging/memory"
)

func ampleMemory() memory.Config {
	return memory.Config{Total: 16384, FrameSize: 16, MinPerProcess: 4096, MaxPerProcess: 4096, Mode: memory.ModeFlat}
}

func newService(t *testing.T, config Config, memoryConfig memory.Config, options ...Option) *Service {
	t.Helper()
	options = append([]Option{WithLogger(logging.Discard())}, options...)
	srv, err := New(config, memoryConfig, options...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func drain(t *testing.T, srv *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Drain(ctx))
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "default", config: DefaultConfig()},
		{name: "fcfs without quantum", config: Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}},
		{name: "rr without quantum", config: Config{Cores: 1, Discipline: RoundRobin, TickInterval: time.Millisecond}, wantErr: true},
		{name: "no cores", config: Config{Cores: 0, Discipline: FCFS, TickInterval: time.Millisecond}, wantErr: true},
		{name: "too many cores", config: Config{Cores: 129, Discipline: FCFS, TickInterval: time.Millisecond}, wantErr: true},
		{name: "unknown discipline", config: Config{Cores: 1, Discipline: "sjf", TickInterval: time.Millisecond}, wantErr: true},
		{name: "no interval", config: Config{Cores: 1, Discipline: FCFS}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_RoundRobin(t *testing.T) {
	tracker := progress.New("rr")
	config := Config{Cores: 4, Discipline: RoundRobin, Quantum: 5, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory(), WithTracker(tracker))
	ctx := context.Background()

	for _, name := range []string{"p1", "p2"} {
		_, err := srv.Submit(ctx, Request{Name: name, Instructions: 12, Footprint: 4096})
		require.NoError(t, err)
	}
	drain(t, srv)

	for _, name := range []string{"p1", "p2"} {
		status, err := srv.Status(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, process.StateTerminated, status.State, name)
		assert.EqualValues(t, 12, status.Cursor, name)
		assert.GreaterOrEqual(t, status.Dispatches, 3, name)
		assert.Equal(t, process.NoCore, status.Core, name)
	}
	assert.Equal(t, 0, srv.Memory().ResidentProcessCount())
	used, total := srv.CoreUtilization()
	assert.Equal(t, 0, used)
	assert.Equal(t, 4, total)

	counters := tracker.Snapshot()
	assert.EqualValues(t, 2, counters.Submitted)
	assert.EqualValues(t, 2, counters.Terminated)
	assert.GreaterOrEqual(t, counters.Dispatches, int64(6))
	assert.GreaterOrEqual(t, counters.Preemptions, int64(4))
	assert.Equal(t, counters.TotalTicks, counters.ActiveTicks+counters.IdleTicks)
}

func TestService_FCFS(t *testing.T) {
	config := Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory())
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		_, err := srv.Submit(ctx, Request{Name: name, Instructions: 20, Footprint: 4096})
		require.NoError(t, err)
	}
	drain(t, srv)

	terminated, err := srv.ListTerminated(ctx)
	require.NoError(t, err)
	require.Len(t, terminated, 2)
	for _, snapshot := range terminated {
		assert.Equal(t, 1, snapshot.Dispatches, snapshot.Name)
		assert.EqualValues(t, 20, snapshot.Cursor)
	}
}

func TestService_NoDispatchInAdmissionTick(t *testing.T) {
	config := Config{Cores: 2, Discipline: FCFS, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory())
	ctx := context.Background()
	id, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 3, Footprint: 4096})
	require.NoError(t, err)

	srv.Tick(ctx)
	srv.wg.Wait()
	status, err := srv.StatusByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StateReady, status.State)
	assert.Equal(t, 0, status.Dispatches)
	assert.Equal(t, []int{id}, srv.Membership().Ready)

	srv.Tick(ctx)
	srv.wg.Wait()
	status, _ = srv.StatusByID(ctx, id)
	assert.Equal(t, process.StateTerminated, status.State)
}

func TestService_TinyMemory(t *testing.T) {
	memoryConfig := memory.Config{Total: 4, FrameSize: 1, MinPerProcess: 2, MaxPerProcess: 4, Mode: memory.ModeFlat}
	config := Config{Cores: 4, Discipline: RoundRobin, Quantum: 5, TickInterval: time.Millisecond}
	tracker := progress.New("tiny")
	srv := newService(t, config, memoryConfig, WithTracker(tracker))
	ctx := context.Background()
	for _, name := range []string{"p1", "p2"} {
		_, err := srv.Submit(ctx, Request{Name: name, Instructions: 12, Footprint: 3})
		require.NoError(t, err)
	}

	for i := 0; i < 200 && !srv.settled(); i++ {
		srv.Tick(ctx)
		srv.wg.Wait()
		assert.LessOrEqual(t, srv.Memory().ResidentProcessCount(), 1)
		resident, err := srv.ListResident(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(resident), 1)
	}
	finished, err := srv.ListTerminated(ctx)
	require.NoError(t, err)
	assert.Len(t, finished, 2)
	assert.Greater(t, tracker.Snapshot().Evictions, int64(0))
}

func TestService_Unplaceable(t *testing.T) {
	config := Config{Cores: 2, Discipline: FCFS, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory())
	ctx := context.Background()
	big, err := srv.Submit(ctx, Request{Name: "big", Instructions: 5, Footprint: 32768})
	require.NoError(t, err)
	small, err := srv.Submit(ctx, Request{Name: "small", Instructions: 5, Footprint: 16})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		srv.Tick(ctx)
		srv.wg.Wait()
	}
	status, err := srv.Status(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, process.StateWaitingForMemory, status.State)
	assert.True(t, status.Unplaceable)
	assert.Equal(t, 0, status.Dispatches)
	assert.Equal(t, []int{big, small}, srv.Membership().Waiting, "the head of the memory-wait queue blocks later submissions")
	drain(t, srv)

	require.NoError(t, srv.Stop(ctx, "big"))
	drain(t, srv)
	status, err = srv.Status(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, process.StateTerminated, status.State)
	status, _ = srv.Status(ctx, "big")
	assert.Equal(t, process.StateStopped, status.State)
	assert.False(t, status.Unplaceable)
}

func TestService_Membership(t *testing.T) {
	config := Config{Cores: 3, Discipline: RoundRobin, Quantum: 2, TickInterval: time.Millisecond}
	cost := process.StepCostFunc(func(ctx context.Context) error {
		timer := time.NewTimer(50 * time.Microsecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
	memoryConfig := memory.Config{Total: 64, FrameSize: 8, MinPerProcess: 16, MaxPerProcess: 16, Mode: memory.ModePaging}
	srv := newService(t, config, memoryConfig, WithStepCost(cost))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 8; i++ {
		_, err := srv.Submit(ctx, Request{Name: "p" + string(rune('a'+i)), Instructions: 10, Footprint: 16})
		require.NoError(t, err)
	}
	srv.Start(ctx)

	cursors := map[int]uint64{}
	require.Eventually(t, func() bool {
		m := srv.Membership()
		seen := map[int]bool{}
		for _, ids := range [][]int{m.Waiting, m.Ready, m.Running} {
			for _, id := range ids {
				assert.False(t, seen[id], "pid %d in more than one queue", id)
				seen[id] = true
			}
		}
		list, err := srv.ListByState(ctx)
		if err != nil {
			return false
		}
		done := 0
		for _, snapshot := range list {
			assert.GreaterOrEqual(t, snapshot.Cursor, cursors[snapshot.ID])
			assert.LessOrEqual(t, snapshot.Cursor, snapshot.Total)
			cursors[snapshot.ID] = snapshot.Cursor
			if snapshot.State == process.StateTerminated {
				done++
			}
		}
		return done == len(list)
	}, 10*time.Second, time.Millisecond)
}

func gatedCost(tokens chan struct{}) process.StepCost {
	return process.StepCostFunc(func(ctx context.Context) error {
		select {
		case <-tokens:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func TestService_Preempt(t *testing.T) {
	tokens := make(chan struct{}, 3)
	config := Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory(), WithStepCost(gatedCost(tokens)))
	ctx := context.Background()
	id, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 10, Footprint: 4096})
	require.NoError(t, err)
	srv.Tick(ctx)
	srv.Tick(ctx)
	for i := 0; i < 3; i++ {
		tokens <- struct{}{}
	}
	require.Eventually(t, func() bool {
		status, _ := srv.Status(ctx, "p1")
		return status.Cursor == 3
	}, time.Second, time.Millisecond)

	require.NoError(t, srv.Preempt(ctx, "p1"))
	close(tokens)
	srv.wg.Wait()
	status, err := srv.Status(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, process.StateReady, status.State)
	assert.EqualValues(t, 3, status.Cursor)
	assert.Equal(t, []int{id}, srv.Membership().Ready)
	assert.True(t, srv.Memory().IsResident(id))

	drain(t, srv)
	status, _ = srv.Status(ctx, "p1")
	assert.Equal(t, process.StateTerminated, status.State)
	assert.Equal(t, 2, status.Dispatches)
}

func TestService_Stop(t *testing.T) {
	tokens := make(chan struct{})
	config := Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}
	tracker := progress.New("stop")
	srv := newService(t, config, ampleMemory(), WithStepCost(gatedCost(tokens)), WithTracker(tracker))
	ctx := context.Background()
	running, err := srv.Submit(ctx, Request{Name: "running", Instructions: 10, Footprint: 4096})
	require.NoError(t, err)
	ready, err := srv.Submit(ctx, Request{Name: "ready", Instructions: 10, Footprint: 4096})
	require.NoError(t, err)
	waiting, err := srv.Submit(ctx, Request{Name: "waiting", Instructions: 10, Footprint: 4096})
	require.NoError(t, err)
	srv.Tick(ctx)
	srv.Tick(ctx)
	assert.Equal(t, Membership{Waiting: []int{waiting}, Ready: []int{ready}, Running: []int{running}}, srv.Membership())

	for _, name := range []string{"running", "ready", "waiting"} {
		require.NoError(t, srv.Stop(ctx, name))
	}
	close(tokens)
	srv.wg.Wait()

	for _, id := range []int{running, ready, waiting} {
		status, err := srv.StatusByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, process.StateStopped, status.State)
		assert.Less(t, status.Cursor, status.Total)
		assert.False(t, srv.Memory().IsResident(id))
	}
	assert.Equal(t, Membership{}, srv.Membership())
	assert.EqualValues(t, 3, tracker.Snapshot().Stopped)
	require.NoError(t, srv.Stop(ctx, "running"), "stopping a stopped process is a no-op")
}

func TestService_Errors(t *testing.T) {
	srv := newService(t, Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}, ampleMemory())
	ctx := context.Background()
	_, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 5, Footprint: 16})
	require.NoError(t, err)

	_, err = srv.Submit(ctx, Request{Name: "p1", Instructions: 5, Footprint: 16})
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	_, err = srv.Submit(ctx, Request{Name: "", Instructions: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = srv.Submit(ctx, Request{Name: "zero"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = srv.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownProcess)
	_, err = srv.StatusByID(ctx, 42)
	assert.ErrorIs(t, err, ErrUnknownProcess)
	assert.ErrorIs(t, srv.Stop(ctx, "missing"), ErrUnknownProcess)
	assert.ErrorIs(t, srv.Preempt(ctx, "missing"), ErrUnknownProcess)
}

func TestService_Purge(t *testing.T) {
	srv := newService(t, Config{Cores: 2, Discipline: FCFS, TickInterval: time.Millisecond}, ampleMemory())
	ctx := context.Background()
	for _, name := range []string{"p1", "p2"} {
		_, err := srv.Submit(ctx, Request{Name: name, Instructions: 4, Footprint: 16})
		require.NoError(t, err)
	}
	drain(t, srv)
	purged, err := srv.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	_, err = srv.Status(ctx, "p1")
	assert.ErrorIs(t, err, ErrUnknownProcess)

	id, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 4, Footprint: 16})
	require.NoError(t, err)
	assert.Equal(t, 3, id, "ids are never reused")
}

func TestService_Shutdown(t *testing.T) {
	tokens := make(chan struct{})
	srv := newService(t, Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}, ampleMemory(), WithStepCost(gatedCost(tokens)))
	ctx := context.Background()
	_, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 10, Footprint: 16})
	require.NoError(t, err)
	srv.Start(ctx)
	require.Eventually(t, func() bool {
		used, _ := srv.CoreUtilization()
		return used == 1
	}, time.Second, time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	status, err := srv.Status(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, process.StateReady, status.State)
	cycle := srv.Cycle()
	assert.Equal(t, cycle, srv.Tick(ctx), "tick after shutdown is a no-op")
}

func TestService_Events(t *testing.T) {
	queue := msgmemory.NewQueue[event.Event[process.Snapshot]](msgmemory.DefaultConfig())
	publisher := event.NewPublisher[process.Snapshot](queue)
	var mu sync.Mutex
	var cycles []uint64
	config := Config{Cores: 1, Discipline: RoundRobin, Quantum: 2, TickInterval: time.Millisecond}
	srv := newService(t, config, ampleMemory(), WithPublisher(publisher), WithTickHook(func(cycle uint64) {
		mu.Lock()
		cycles = append(cycles, cycle)
		mu.Unlock()
	}))
	ctx := context.Background()
	_, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 4, Footprint: 16})
	require.NoError(t, err)
	drain(t, srv)

	var types []string
	for queue.Size() > 0 {
		message, err := publisher.Consume(ctx)
		require.NoError(t, err)
		require.NoError(t, message.Ack())
		e := message.T()
		assert.Equal(t, "p1", e.Context.Name)
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		event.TypeSubmitted,
		event.TypeAdmitted,
		event.TypeDispatched,
		event.TypePreempted,
		event.TypeDispatched,
		event.TypeTerminated,
	}, types)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, cycles)
}

func TestService_MemoryIsReadOnly(t *testing.T) {
	srv := newService(t, Config{Cores: 1, Discipline: FCFS, TickInterval: time.Millisecond}, ampleMemory())
	ctx := context.Background()
	id, err := srv.Submit(ctx, Request{Name: "p1", Instructions: 3, Footprint: 4096})
	require.NoError(t, err)
	srv.Tick(ctx)

	view := srv.Memory()
	_, canAllocate := any(view).(interface{ Allocate(int, uint64) bool })
	_, canFree := any(view).(interface{ Free(int) })
	assert.False(t, canAllocate)
	assert.False(t, canFree)

	assert.True(t, view.IsResident(id))
	assert.Equal(t, 1, view.ResidentProcessCount())
	assert.Equal(t, uint64(4096), view.Summary().Used)
	assert.Len(t, view.Layout(), 1)
	drain(t, srv)
	assert.False(t, view.IsResident(id))
}
