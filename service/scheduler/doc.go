// Package scheduler implements the dispatch loop pairing idle cores with
// memory-resident work.
//
// Every tick promotes at most one descriptor from the memory-wait queue into
// the ready queue, then hands ready descriptors that were already queued before
// the tick to idle cores, lowest core index first. Execution runs on its own
// goroutine per dispatch without holding the scheduler lock; on completion the
// core is released and the descriptor is terminated, stopped or requeued.
package scheduler
