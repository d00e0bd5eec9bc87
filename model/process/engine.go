package process

import (
	"context"
	"strconv"

	"github.com/viant/schedsim/tracing"
)

// Execute advances the cursor on behalf of core until the quantum is spent
// (quantum 0 means unbounded), the descriptor finishes, an interrupt is
// requested or ctx is cancelled. It returns the number of executed instructions.
func (d *Descriptor) Execute(ctx context.Context, core int, quantum uint64, cost StepCost) (executed uint64) {
	ctx, span := tracing.StartSpan(ctx, "process.run "+d.Name, "INTERNAL")
	defer func() {
		span.WithAttributes(map[string]string{"process.executed": strconv.FormatUint(executed, 10)})
		tracing.EndSpan(span, nil)
	}()
	span.WithAttributes(map[string]string{
		"process.id": strconv.Itoa(d.ID),
		"core.id":    strconv.Itoa(core),
	})
	if cost == nil {
		cost = NoDelay
	}
	for {
		if quantum > 0 && executed >= quantum {
			return executed
		}
		if d.Finished() || d.Interrupted() != InterruptNone || ctx.Err() != nil {
			return executed
		}
		if err := cost.Step(ctx); err != nil {
			return executed
		}
		if d.Interrupted() != InterruptNone {
			return executed
		}
		if !d.advance() {
			return executed
		}
		executed++
	}
}
