package process

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/schedsim/internal/clock"
)

// NoCore is the core index of a descriptor that is not dispatched.
const NoCore = -1

// Descriptor represents a simulated process. Identity, totals and footprint are
// immutable; the cursor is advanced by the execution engine only, state and core
// are mutated by the scheduler under its lock.
type Descriptor struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Total     uint64    `json:"total"`
	Footprint uint64    `json:"footprint"`
	CreatedAt time.Time `json:"createdAt"`

	cursor    atomic.Uint64
	interrupt atomic.Int32

	mu         sync.RWMutex
	state      State
	core       int
	dispatches int
}

// New creates a descriptor in StateNew
func New(id int, name string, total, footprint uint64) *Descriptor {
	return &Descriptor{
		ID:        id,
		Name:      name,
		Total:     total,
		Footprint: footprint,
		CreatedAt: clock.Now(),
		state:     StateNew,
		core:      NoCore,
	}
}

// Cursor returns the number of executed instructions. Safe for concurrent use.
func (d *Descriptor) Cursor() uint64 {
	return d.cursor.Load()
}

// Finished reports whether every instruction has been executed.
func (d *Descriptor) Finished() bool {
	return d.cursor.Load() >= d.Total
}

// advance moves the cursor by one without crossing Total.
func (d *Descriptor) advance() bool {
	for {
		current := d.cursor.Load()
		if current >= d.Total {
			return false
		}
		if d.cursor.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// GetState returns the current state
func (d *Descriptor) GetState() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SetState sets the state
func (d *Descriptor) SetState(state State) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

// Core returns the assigned core index or NoCore.
func (d *Descriptor) Core() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.core
}

// Dispatch marks the descriptor running on core and counts the dispatch.
func (d *Descriptor) Dispatch(core int) {
	d.mu.Lock()
	d.state = StateRunning
	d.core = core
	d.dispatches++
	d.mu.Unlock()
}

// Release clears the core assignment and moves the descriptor to state.
func (d *Descriptor) Release(state State) {
	d.mu.Lock()
	d.state = state
	d.core = NoCore
	d.mu.Unlock()
}

// Dispatches returns how many times the descriptor was given a core.
func (d *Descriptor) Dispatches() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dispatches
}

// Interrupt records a cooperative deactivation request. A stop request is never
// downgraded to a preemption.
func (d *Descriptor) Interrupt(kind Interrupt) {
	for {
		current := Interrupt(d.interrupt.Load())
		if current == InterruptStop || current == kind {
			return
		}
		if d.interrupt.CompareAndSwap(int32(current), int32(kind)) {
			return
		}
	}
}

// Interrupted returns the pending interrupt request.
func (d *Descriptor) Interrupted() Interrupt {
	return Interrupt(d.interrupt.Load())
}

// TakeInterrupt returns and clears the pending interrupt request.
func (d *Descriptor) TakeInterrupt() Interrupt {
	return Interrupt(d.interrupt.Swap(int32(InterruptNone)))
}

// Snapshot returns a point in time copy suitable for reporting.
func (d *Descriptor) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		ID:         d.ID,
		Name:       d.Name,
		State:      d.state,
		Cursor:     d.cursor.Load(),
		Total:      d.Total,
		Core:       d.core,
		Footprint:  d.Footprint,
		Dispatches: d.dispatches,
		CreatedAt:  d.CreatedAt,
	}
}

// Snapshot is an immutable view of a descriptor.
type Snapshot struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Cursor      uint64    `json:"cursor"`
	Total       uint64    `json:"total"`
	Core        int       `json:"core"`
	Footprint   uint64    `json:"footprint"`
	Dispatches  int       `json:"dispatches"`
	CreatedAt   time.Time `json:"createdAt"`
	Unplaceable bool      `json:"unplaceable,omitempty"`
}
