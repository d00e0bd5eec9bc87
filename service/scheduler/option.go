package scheduler

import (
	"log/slog"

	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/progress"
	procdao "github.com/viant/schedsim/service/dao/process/memory"
	"github.com/viant/schedsim/service/event"
	"github.com/viant/schedsim/service/memory"
)

// Option customises a Service
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithStepCost sets the per instruction cost used by every dispatch
func WithStepCost(cost process.StepCost) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithProcessTable replaces the in-memory process table
func WithProcessTable(table *procdao.Service) Option {
	return func(s *Service) {
		s.processes = table
	}
}

// WithMemoryOptions passes options to the memory manager
func WithMemoryOptions(options ...memory.Option) Option {
	return func(s *Service) {
		s.memoryOptions = append(s.memoryOptions, options...)
	}
}

// WithPublisher emits lifecycle events to publisher
func WithPublisher(publisher *event.Publisher[process.Snapshot]) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithTracker sets the counters tracker
func WithTracker(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.tracker = tracker
	}
}

// WithTickHook registers fn, called after every tick with the cycle number
// outside the scheduler lock.
func WithTickHook(fn func(cycle uint64)) Option {
	return func(s *Service) {
		s.onTick = append(s.onTick, fn)
	}
}
