package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/progress"
	"github.com/viant/schedsim/service/dao"
	procdao "github.com/viant/schedsim/service/dao/process/memory"
	"github.com/viant/schedsim/service/event"
	"github.com/viant/schedsim/service/memory"
	"github.com/viant/schedsim/tracing"
)

// Request describes a process to submit
type Request struct {
	Name         string
	Instructions uint64
	Footprint    uint64
}

// Membership lists descriptor ids per queue at one instant
type Membership struct {
	Waiting []int
	Ready   []int
	Running []int
}

// handle tracks one dispatch; the scheduler keeps it until the engine returns.
type handle struct {
	descriptor *process.Descriptor
	core       int
	ctx        context.Context
	cancel     context.CancelFunc
}

// Service owns the core table, the memory-wait and ready queues and the memory manager.
type Service struct {
	config        Config
	memory        *memory.Manager
	memoryOptions []memory.Option
	processes     *procdao.Service
	cost          process.StepCost
	logger        *slog.Logger
	publisher     *event.Publisher[process.Snapshot]
	tracker       *progress.Progress
	onTick        []func(cycle uint64)

	mu          sync.Mutex
	nextID      int
	waiting     fifo
	ready       fifo
	cores       []*handle
	cycle       uint64
	evicted     []int
	unplaceable map[int]bool
	fresh       map[int]bool
	closed      bool

	root       context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	loopMu     sync.Mutex
	shutdownCh chan struct{}
	loopDone   chan struct{}
}

// New creates a scheduler and its memory manager
func New(config Config, memoryConfig memory.Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	s := &Service{
		config:      config,
		cost:        process.NoDelay,
		logger:      slog.Default(),
		cores:       make([]*handle, config.Cores),
		unplaceable: make(map[int]bool),
		fresh:       make(map[int]bool),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.processes == nil {
		s.processes = procdao.New()
	}
	memoryOptions := append([]memory.Option{memory.WithLogger(s.logger)}, s.memoryOptions...)
	memoryOptions = append(memoryOptions, memory.WithEvictable(s.evictable), memory.WithEvictionListener(s.onEvicted))
	manager, err := memory.New(memoryConfig, memoryOptions...)
	if err != nil {
		return nil, err
	}
	s.memory = manager
	s.root, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Config returns the scheduler configuration
func (s *Service) Config() Config {
	return s.config
}

// Memory returns a read-only view of the memory manager; allocation stays
// with the scheduler since eviction callbacks run under its lock.
func (s *Service) Memory() memory.View {
	return s.memory.View()
}

// Tracker returns the counters tracker, possibly nil
func (s *Service) Tracker() *progress.Progress {
	return s.tracker
}

// evictable limits eviction to ready descriptors that ran at least once since
// admission; it runs inside Allocate while the scheduler lock is held.
func (s *Service) evictable(processID int) bool {
	if s.fresh[processID] {
		return false
	}
	d, err := s.processes.Load(context.Background(), processID)
	return err == nil && d.GetState() == process.StateReady
}

func (s *Service) onEvicted(processID int) {
	s.evicted = append(s.evicted, processID)
}

// Submit registers a new descriptor and appends it to the memory-wait queue.
func (s *Service) Submit(ctx context.Context, request Request) (id int, err error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.submit", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	if request.Name == "" || request.Instructions == 0 {
		return 0, fmt.Errorf("%w: name %q, instructions %d", ErrInvalidRequest, request.Name, request.Instructions)
	}
	s.mu.Lock()
	if _, err := s.processes.LoadByName(ctx, request.Name); err == nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrDuplicateSubmission, request.Name)
	}
	s.nextID++
	d := process.New(s.nextID, request.Name, request.Instructions, request.Footprint)
	d.SetState(process.StateWaitingForMemory)
	if err = s.processes.Save(ctx, d); err != nil {
		s.mu.Unlock()
		if errors.Is(err, dao.ErrDuplicate) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateSubmission, request.Name)
		}
		return 0, err
	}
	s.waiting.push(d.ID)
	cycle := s.cycle
	snapshot := s.snapshot(d)
	s.mu.Unlock()

	span.WithAttributes(map[string]string{"process.id": strconv.Itoa(d.ID), "process.name": d.Name})
	s.tracker.Update(progress.Delta{Submitted: 1})
	s.logger.Info("submitted process", "pid", d.ID, "name", d.Name, "instructions", d.Total, "footprint", d.Footprint)
	s.publish(ctx, []*event.Event[process.Snapshot]{s.newEvent(event.TypeSubmitted, snapshot, cycle)})
	return d.ID, nil
}

// Tick runs one scheduling step: at most one memory promotion, then dispatch
// of descriptors that were ready before the promotion. It returns the cycle number.
func (s *Service) Tick(ctx context.Context) uint64 {
	s.mu.Lock()
	if s.closed {
		cycle := s.cycle
		s.mu.Unlock()
		return cycle
	}
	before := s.memory.Stats()
	s.cycle++
	cycle := s.cycle
	var events []*event.Event[process.Snapshot]
	eligible := len(s.ready)
	eligible, events = s.promote(eligible, events)
	launches, events := s.dispatch(eligible, events)
	busy := s.busyCores()
	delta := s.memoryDelta(before)
	s.mu.Unlock()

	delta.TotalTicks = 1
	delta.Dispatches = int64(len(launches))
	if busy > 0 {
		delta.ActiveTicks = 1
	} else {
		delta.IdleTicks = 1
	}
	s.tracker.Update(delta)
	s.publish(ctx, events)
	for _, h := range launches {
		go s.run(h)
	}
	for _, fn := range s.onTick {
		fn(cycle)
	}
	return cycle
}

// promote moves the head of the memory-wait queue to the ready queue when
// memory allows; the head stays in place otherwise.
func (s *Service) promote(eligible int, events []*event.Event[process.Snapshot]) (int, []*event.Event[process.Snapshot]) {
	id, ok := s.waiting.front()
	if !ok {
		return eligible, events
	}
	if s.config.MaxResident > 0 && s.memory.ResidentProcessCount() >= s.config.MaxResident {
		return eligible, events
	}
	d, err := s.processes.Load(context.Background(), id)
	if err != nil {
		s.waiting.pop()
		return eligible, events
	}
	if !s.memory.Fits(d.Footprint) {
		if !s.unplaceable[id] {
			s.unplaceable[id] = true
			s.logger.Warn("process footprint exceeds total memory", "pid", id, "name", d.Name, "footprint", d.Footprint)
			events = append(events, s.newEvent(event.TypeUnplaceable, s.snapshot(d), s.cycle))
		}
		return eligible, events
	}
	s.evicted = s.evicted[:0]
	allocated := s.memory.Allocate(id, d.Footprint)
	for _, victim := range s.evicted {
		if index := s.ready.remove(victim); index >= 0 && index < eligible {
			eligible--
		}
		evicted, err := s.processes.Load(context.Background(), victim)
		if err != nil {
			continue
		}
		evicted.SetState(process.StateWaitingForMemory)
		s.waiting.push(victim)
		events = append(events, s.newEvent(event.TypeEvicted, s.snapshot(evicted), s.cycle))
	}
	if !allocated {
		return eligible, events
	}
	s.waiting.pop()
	d.SetState(process.StateReady)
	s.ready.push(id)
	s.fresh[id] = true
	s.logger.Debug("admitted process", "pid", id, "name", d.Name, "frames", len(s.memory.FramesOf(id)))
	events = append(events, s.newEvent(event.TypeAdmitted, s.snapshot(d), s.cycle))
	return eligible, events
}

// dispatch pairs idle cores, lowest index first, with the first eligible ready descriptors.
func (s *Service) dispatch(eligible int, events []*event.Event[process.Snapshot]) ([]*handle, []*event.Event[process.Snapshot]) {
	var launches []*handle
	for core := range s.cores {
		if eligible == 0 {
			break
		}
		if s.cores[core] != nil {
			continue
		}
		id, _ := s.ready.pop()
		eligible--
		d, err := s.processes.Load(context.Background(), id)
		if err != nil {
			continue
		}
		delete(s.fresh, id)
		d.TakeInterrupt()
		d.Dispatch(core)
		ctx, cancel := context.WithCancel(s.root)
		h := &handle{descriptor: d, core: core, ctx: ctx, cancel: cancel}
		s.cores[core] = h
		s.wg.Add(1)
		launches = append(launches, h)
		s.logger.Debug("dispatched process", "pid", id, "name", d.Name, "core", core)
		events = append(events, s.newEvent(event.TypeDispatched, s.snapshot(d), s.cycle))
	}
	return launches, events
}

func (s *Service) run(h *handle) {
	defer s.wg.Done()
	var executed uint64
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution panic", "pid", h.descriptor.ID, "core", h.core, "panic", r)
		}
		s.complete(h, executed)
	}()
	executed = h.descriptor.Execute(h.ctx, h.core, s.config.quantum(), s.cost)
}

// complete releases the core and terminates, stops or requeues the descriptor.
func (s *Service) complete(h *handle, executed uint64) {
	h.cancel()
	d := h.descriptor
	s.mu.Lock()
	before := s.memory.Stats()
	if s.cores[h.core] == h {
		s.cores[h.core] = nil
	}
	interrupt := d.TakeInterrupt()
	var eventType string
	var delta progress.Delta
	switch {
	case d.Finished():
		s.memory.Free(d.ID)
		d.Release(process.StateTerminated)
		eventType = event.TypeTerminated
		delta.Terminated = 1
	case interrupt == process.InterruptStop:
		s.memory.Free(d.ID)
		d.Release(process.StateStopped)
		eventType = event.TypeStopped
		delta.Stopped = 1
	default:
		d.Release(process.StateReady)
		s.ready.push(d.ID)
		eventType = event.TypePreempted
		delta.Preemptions = 1
	}
	paging := s.memoryDelta(before)
	delta.PagedOut = paging.PagedOut
	snapshot := s.snapshot(d)
	cycle := s.cycle
	s.mu.Unlock()

	s.tracker.Update(delta)
	s.logger.Debug("released core", "pid", d.ID, "core", h.core, "executed", executed, "state", snapshot.State)
	s.publish(context.Background(), []*event.Event[process.Snapshot]{s.newEvent(eventType, snapshot, cycle)})
}

// Preempt asks a running descriptor to give up its core; it is requeued unfinished.
func (s *Service) Preempt(ctx context.Context, name string) error {
	d, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.GetState() == process.StateRunning {
		d.Interrupt(process.InterruptPreempt)
	}
	return nil
}

// Stop deactivates a descriptor permanently and frees its memory. A running
// descriptor is stopped when its engine observes the request.
func (s *Service) Stop(ctx context.Context, name string) error {
	d, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	before := s.memory.Stats()
	switch d.GetState() {
	case process.StateRunning:
		d.Interrupt(process.InterruptStop)
		s.mu.Unlock()
		return nil
	case process.StateNew, process.StateWaitingForMemory:
		s.waiting.remove(d.ID)
	case process.StateReady:
		s.ready.remove(d.ID)
		delete(s.fresh, d.ID)
		s.memory.Free(d.ID)
	default:
		s.mu.Unlock()
		return nil
	}
	d.Release(process.StateStopped)
	delta := s.memoryDelta(before)
	delta.Stopped = 1
	snapshot := s.snapshot(d)
	cycle := s.cycle
	s.mu.Unlock()

	s.tracker.Update(delta)
	s.logger.Info("stopped process", "pid", d.ID, "name", d.Name)
	s.publish(ctx, []*event.Event[process.Snapshot]{s.newEvent(event.TypeStopped, snapshot, cycle)})
	return nil
}

func (s *Service) lookup(ctx context.Context, name string) (*process.Descriptor, error) {
	d, err := s.processes.LoadByName(ctx, name)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) || errors.Is(err, dao.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
		}
		return nil, err
	}
	return d, nil
}

// Status returns the snapshot of the descriptor registered under name
func (s *Service) Status(ctx context.Context, name string) (process.Snapshot, error) {
	d, err := s.lookup(ctx, name)
	if err != nil {
		return process.Snapshot{}, err
	}
	return s.snapshot(d), nil
}

// StatusByID returns the snapshot of the descriptor with id
func (s *Service) StatusByID(ctx context.Context, id int) (process.Snapshot, error) {
	d, err := s.processes.Load(ctx, id)
	if err != nil {
		return process.Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownProcess, id)
	}
	return s.snapshot(d), nil
}

func (s *Service) snapshot(d *process.Descriptor) process.Snapshot {
	snapshot := d.Snapshot()
	if snapshot.State == process.StateWaitingForMemory && !s.memory.Fits(d.Footprint) {
		snapshot.Unplaceable = true
	}
	return snapshot
}

// ListByState returns snapshots, in submission order, of descriptors in any of states
func (s *Service) ListByState(ctx context.Context, states ...process.State) ([]process.Snapshot, error) {
	var parameters []*dao.Parameter
	if len(states) > 0 {
		values := make([]string, len(states))
		for i, state := range states {
			values[i] = string(state)
		}
		parameters = append(parameters, dao.NewParameter("State", values...))
	}
	list, err := s.processes.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	out := make([]process.Snapshot, 0, len(list))
	for _, d := range list {
		out = append(out, s.snapshot(d))
	}
	return out, nil
}

// ListResident returns descriptors holding memory
func (s *Service) ListResident(ctx context.Context) ([]process.Snapshot, error) {
	return s.ListByState(ctx, process.StateReady, process.StateRunning)
}

// ListRunning returns descriptors occupying a core
func (s *Service) ListRunning(ctx context.Context) ([]process.Snapshot, error) {
	return s.ListByState(ctx, process.StateRunning)
}

// ListTerminated returns descriptors that executed every instruction
func (s *Service) ListTerminated(ctx context.Context) ([]process.Snapshot, error) {
	return s.ListByState(ctx, process.StateTerminated)
}

// ListFinished returns terminated and stopped descriptors
func (s *Service) ListFinished(ctx context.Context) ([]process.Snapshot, error) {
	return s.ListByState(ctx, process.StateTerminated, process.StateStopped)
}

// CoreUtilization returns busy and total core counts
func (s *Service) CoreUtilization() (used, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyCores(), len(s.cores)
}

func (s *Service) busyCores() int {
	busy := 0
	for _, h := range s.cores {
		if h != nil {
			busy++
		}
	}
	return busy
}

// Membership returns queue and core membership at one instant
func (s *Service) Membership() Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Membership{Waiting: s.waiting.ids(), Ready: s.ready.ids()}
	for _, h := range s.cores {
		if h != nil {
			m.Running = append(m.Running, h.descriptor.ID)
		}
	}
	return m
}

// Cycle returns the number of ticks executed
func (s *Service) Cycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// Purge removes terminated and stopped descriptors from the process table,
// releasing their names. It returns the number of removed descriptors.
func (s *Service) Purge(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.processes.List(ctx, dao.NewParameter("State", string(process.StateTerminated), string(process.StateStopped)))
	if err != nil {
		return 0, err
	}
	for _, d := range list {
		if err = s.processes.Delete(ctx, d.ID); err != nil {
			return 0, err
		}
		delete(s.unplaceable, d.ID)
	}
	return len(list), nil
}

// Start runs Tick every TickInterval until ctx is done or Shutdown is called.
// Calling Start on a running scheduler is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.shutdownCh != nil {
		return
	}
	shutdownCh := make(chan struct{})
	done := make(chan struct{})
	s.shutdownCh, s.loopDone = shutdownCh, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-shutdownCh:
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()
}

func (s *Service) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panic", "panic", r)
		}
	}()
	s.Tick(ctx)
}

// Drain ticks and waits for every dispatch to return until no further progress
// is possible: both queues are empty, or only unplaceable descriptors wait.
// Drain must not be combined with Start.
func (s *Service) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Tick(ctx)
		s.wg.Wait()
		if s.settled() {
			return nil
		}
	}
}

func (s *Service) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if len(s.ready) > 0 || s.busyCores() > 0 {
		return false
	}
	id, ok := s.waiting.front()
	if !ok {
		return true
	}
	d, err := s.processes.Load(context.Background(), id)
	return err == nil && !s.memory.Fits(d.Footprint)
}

// Shutdown stops the tick loop, cancels every dispatch and waits for engines
// to return. Unfinished descriptors stay in the ready queue.
func (s *Service) Shutdown(ctx context.Context) error {
	s.loopMu.Lock()
	if s.shutdownCh != nil {
		close(s.shutdownCh)
		<-s.loopDone
		s.shutdownCh, s.loopDone = nil, nil
	}
	s.loopMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) memoryDelta(before memory.Stats) progress.Delta {
	after := s.memory.Stats()
	return progress.Delta{
		PagedIn:   int64(after.PagedIn - before.PagedIn),
		PagedOut:  int64(after.PagedOut - before.PagedOut),
		Evictions: int64(after.Evictions - before.Evictions),
	}
}

func (s *Service) newEvent(eventType string, snapshot process.Snapshot, cycle uint64) *event.Event[process.Snapshot] {
	return event.NewEvent(&event.Context{
		ProcessID: snapshot.ID,
		Name:      snapshot.Name,
		EventType: eventType,
		CoreID:    snapshot.Core,
		Cycle:     cycle,
	}, snapshot)
}

func (s *Service) publish(ctx context.Context, events []*event.Event[process.Snapshot]) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Debug("dropped lifecycle event", "event", e.Type(), "pid", e.Context.ProcessID, "error", err)
		}
	}
}
