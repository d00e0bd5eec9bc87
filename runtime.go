package schedsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"math/rand/v2"
	"sync"

	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/service/memory"
	"github.com/viant/schedsim/service/scheduler"
)

// Runtime exposes process lifecycle operations: submission, status queries,
// deactivation and the batch generator.
type Runtime struct {
	config    *Config
	scheduler *scheduler.Service
	logger    *slog.Logger

	randMu sync.Mutex
	random *rand.Rand

	batchMu     sync.Mutex
	batching    bool
	batchCycles uint64
	batchSeq    int
}

// Submit creates a process named name with an instruction count drawn from
// [min-ins, max-ins] and queues it for memory.
func (r *Runtime) Submit(ctx context.Context, name string) (int, error) {
	instructions, footprint := r.draw()
	return r.scheduler.Submit(ctx, scheduler.Request{Name: name, Instructions: instructions, Footprint: footprint})
}

// draw picks the instruction count and the memory footprint; flat mode uses
// min-mem-per-proc, paging a random power of two in [min, max].
func (r *Runtime) draw() (instructions, footprint uint64) {
	r.randMu.Lock()
	defer r.randMu.Unlock()
	instructions = r.config.MinIns
	if span := r.config.MaxIns - r.config.MinIns; span > 0 {
		instructions += r.random.Uint64N(span + 1)
	}
	footprint = r.config.MinMemPerProc
	if memory.Mode(r.config.Allocator) == memory.ModePaging && r.config.MaxMemPerProc > r.config.MinMemPerProc {
		low := bits.TrailingZeros64(r.config.MinMemPerProc)
		high := bits.TrailingZeros64(r.config.MaxMemPerProc)
		footprint = uint64(1) << (low + r.random.IntN(high-low+1))
	}
	return instructions, footprint
}

// Status returns the status of the process registered under name
func (r *Runtime) Status(ctx context.Context, name string) (process.Snapshot, error) {
	return r.scheduler.Status(ctx, name)
}

// StatusByID returns the status of the process with id
func (r *Runtime) StatusByID(ctx context.Context, id int) (process.Snapshot, error) {
	return r.scheduler.StatusByID(ctx, id)
}

// ListByState returns processes in any of states, all when none given
func (r *Runtime) ListByState(ctx context.Context, states ...process.State) ([]process.Snapshot, error) {
	return r.scheduler.ListByState(ctx, states...)
}

// ListResident returns processes holding memory
func (r *Runtime) ListResident(ctx context.Context) ([]process.Snapshot, error) {
	return r.scheduler.ListResident(ctx)
}

// ListRunning returns processes occupying a core
func (r *Runtime) ListRunning(ctx context.Context) ([]process.Snapshot, error) {
	return r.scheduler.ListRunning(ctx)
}

// ListTerminated returns processes that executed every instruction
func (r *Runtime) ListTerminated(ctx context.Context) ([]process.Snapshot, error) {
	return r.scheduler.ListTerminated(ctx)
}

// CoreUtilization returns busy and total core counts
func (r *Runtime) CoreUtilization() (used, total int) {
	return r.scheduler.CoreUtilization()
}

// Preempt releases the core of a running process; it is requeued unfinished.
func (r *Runtime) Preempt(ctx context.Context, name string) error {
	return r.scheduler.Preempt(ctx, name)
}

// Stop deactivates a process permanently
func (r *Runtime) Stop(ctx context.Context, name string) error {
	return r.scheduler.Stop(ctx, name)
}

// Purge drops finished processes from the process table
func (r *Runtime) Purge(ctx context.Context) (int, error) {
	return r.scheduler.Purge(ctx)
}

// StartBatch starts submitting a process every batch-process-freq cycles. It
// returns false when the generator already runs.
func (r *Runtime) StartBatch() bool {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if r.batching {
		return false
	}
	r.batching = true
	r.batchCycles = 0
	return true
}

// StopBatch stops the generator. It returns false when it was not running.
func (r *Runtime) StopBatch() bool {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	wasRunning := r.batching
	r.batching = false
	return wasRunning
}

// Batching reports whether the generator runs
func (r *Runtime) Batching() bool {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.batching
}

// onTick advances the batch generator by one cycle.
func (r *Runtime) onTick(ctx context.Context) {
	r.batchMu.Lock()
	if !r.batching {
		r.batchMu.Unlock()
		return
	}
	r.batchCycles++
	due := r.batchCycles%r.config.BatchProcessFreq == 0
	r.batchMu.Unlock()
	if !due {
		return
	}
	for attempt := 0; attempt < 1000; attempt++ {
		name := r.nextBatchName()
		_, err := r.Submit(ctx, name)
		if err == nil {
			return
		}
		if !errors.Is(err, scheduler.ErrDuplicateSubmission) {
			r.logger.Error("batch submission failed", "name", name, "error", err)
			return
		}
	}
}

func (r *Runtime) nextBatchName() string {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	r.batchSeq++
	return fmt.Sprintf("process%03d", r.batchSeq)
}
