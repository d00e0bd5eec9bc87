package progress

import (
	"context"
	"sync"
	"time"

	"github.com/viant/schedsim/internal/clock"
)

// Delta represents an incremental counter change emitted by the scheduler or
// the memory manager. Fields are signed; zero fields leave counters unchanged.
type Delta struct {
	TotalTicks  int64
	ActiveTicks int64
	IdleTicks   int64
	Submitted   int64
	Dispatches  int64
	Preemptions int64
	Evictions   int64
	Terminated  int64
	Stopped     int64
	PagedIn     int64
	PagedOut    int64
}

// Counters is a point in time copy of the tracker
type Counters struct {
	SessionID string
	StartedAt time.Time

	TotalTicks  int64
	ActiveTicks int64
	IdleTicks   int64
	Submitted   int64
	Dispatches  int64
	Preemptions int64
	Evictions   int64
	Terminated  int64
	Stopped     int64
	PagedIn     int64
	PagedOut    int64
}

// Progress aggregates counters. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// New creates a tracker stamped with sessionID
func New(sessionID string) *Progress {
	return &Progress{counters: Counters{SessionID: sessionID, StartedAt: clock.Now()}}
}

// Update applies the supplied delta. The onChange callback, if any, receives a
// copy of the updated counters outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	c := &p.counters
	c.TotalTicks += d.TotalTicks
	c.ActiveTicks += d.ActiveTicks
	c.IdleTicks += d.IdleTicks
	c.Submitted += d.Submitted
	c.Dispatches += d.Dispatches
	c.Preemptions += d.Preemptions
	c.Evictions += d.Evictions
	c.Terminated += d.Terminated
	c.Stopped += d.Stopped
	c.PagedIn += d.PagedIn
	c.PagedOut += d.PagedOut
	snapshot := *c
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables it; only one callback is active at a time.
func (p *Progress) OnChange(cb func(Counters)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in a derived context.
func WithTracker(ctx context.Context, tracker *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
