package process

import (
	"context"
	"math/rand/v2"
	"time"
)

// StepCost simulates the cost of one instruction. Implementations may block and
// must return ctx.Err() once ctx is cancelled.
type StepCost interface {
	Step(ctx context.Context) error
}

// StepCostFunc adapts a function to StepCost
type StepCostFunc func(ctx context.Context) error

// Step calls f
func (f StepCostFunc) Step(ctx context.Context) error { return f(ctx) }

// NoDelay executes instructions back to back; used by tests.
var NoDelay StepCost = StepCostFunc(func(ctx context.Context) error { return ctx.Err() })

// Delay busy-waits Cycles iterations, then sleeps a random duration in [Min, Max].
type Delay struct {
	Cycles uint64
	Min    time.Duration
	Max    time.Duration
}

// NewDelay returns the production step cost
func NewDelay(cycles uint64, min, max time.Duration) *Delay {
	if max < min {
		max = min
	}
	return &Delay{Cycles: cycles, Min: min, Max: max}
}

// Step implements StepCost
func (d *Delay) Step(ctx context.Context) error {
	for i := uint64(0); i < d.Cycles; i++ {
		if i&0xffff == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	pause := d.Min
	if d.Max > d.Min {
		pause += time.Duration(rand.Int64N(int64(d.Max-d.Min) + 1))
	}
	if pause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
