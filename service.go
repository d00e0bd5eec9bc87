package schedsim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/viant/afs"
	"github.com/viant/schedsim/internal/clock"
	"github.com/viant/schedsim/internal/idgen"
	"github.com/viant/schedsim/internal/logging"
	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/progress"
	"github.com/viant/schedsim/service/event"
	"github.com/viant/schedsim/service/memory"
	mmemory "github.com/viant/schedsim/service/messaging/memory"
	"github.com/viant/schedsim/service/report"
	"github.com/viant/schedsim/service/scheduler"
	"github.com/viant/schedsim/tracing"
)

// Service wires the scheduler, the memory manager, lifecycle events and the
// reports behind one facade.
type Service struct {
	config     *Config
	sessionID  string
	logger     *slog.Logger
	fs         afs.Service
	cost       process.StepCost
	random     *rand.Rand
	handlers   []func(*event.Event[process.Snapshot])
	initErrors []error

	tracker   *progress.Progress
	queue     *mmemory.Queue[event.Event[process.Snapshot]]
	listener  *event.Listener[process.Snapshot]
	scheduler *scheduler.Service
	reports   *report.Writer
	snapshots *report.Writer
	runtime   *Runtime
	ctx       context.Context
}

// New validates config and builds a stopped simulator
func New(config *Config, options ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Service{config: config, sessionID: idgen.New(), ctx: context.Background()}
	for _, option := range options {
		option(s)
	}
	if err := errors.Join(s.initErrors...); err != nil {
		return nil, err
	}
	s.ensureBaseSetup()

	publisher := event.NewPublisher[process.Snapshot](s.queue)
	s.listener = event.NewListener[process.Snapshot](publisher, s.handle, s.logger)
	s.runtime = &Runtime{config: config, logger: s.logger, random: s.random}
	var err error
	s.scheduler, err = scheduler.New(config.SchedulerConfig(), config.MemoryConfig(),
		scheduler.WithLogger(s.logger),
		scheduler.WithStepCost(s.cost),
		scheduler.WithTracker(s.tracker),
		scheduler.WithPublisher(publisher),
		scheduler.WithTickHook(s.onTick),
	)
	if err != nil {
		return nil, errors.Join(ErrConfigInvalid, err)
	}
	s.runtime.scheduler = s.scheduler
	s.logger.Info("simulator initialised", "session", s.sessionID, "cores", config.NumCPU,
		"scheduler", config.Scheduler, "allocator", config.Allocator, "memory", config.MaxOverallMem)
	return s, nil
}

func (s *Service) ensureBaseSetup() {
	if s.logger == nil {
		s.logger = logging.New(os.Stderr, s.config.LogLevel, "schedsim")
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.cost == nil {
		s.cost = process.NewDelay(s.config.DelaysPerExec, s.config.StepSleepMin, s.config.StepSleepMax)
	}
	if s.random == nil {
		now := uint64(clock.Now().UnixNano())
		s.random = rand.New(rand.NewPCG(now, now>>1|1))
	}
	s.tracker = progress.New(s.sessionID)
	queueConfig := mmemory.DefaultConfig()
	queueConfig.QueueBuffer = 1024
	queueConfig.NonBlocking = true
	s.queue = mmemory.NewQueue[event.Event[process.Snapshot]](queueConfig)
	s.reports = report.NewWriter(s.fs, "")
	s.snapshots = report.NewWriter(s.fs, s.config.SnapshotURL)
}

// Runtime returns the process lifecycle operations
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the validated configuration
func (s *Service) Config() *Config {
	return s.config
}

// SessionID identifies this simulator run in reports
func (s *Service) SessionID() string {
	return s.sessionID
}

// Tracker returns simulator counters
func (s *Service) Tracker() *progress.Progress {
	return s.tracker
}

// Scheduler returns the underlying scheduler
func (s *Service) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Start launches the event listener and the scheduler tick loop
func (s *Service) Start(ctx context.Context) {
	s.ctx = ctx
	s.listener.Start(ctx)
	s.scheduler.Start(ctx)
}

// Shutdown stops batch generation, the scheduler and the listener
func (s *Service) Shutdown(ctx context.Context) error {
	s.runtime.StopBatch()
	err := s.scheduler.Shutdown(ctx)
	s.listener.Stop()
	return err
}

func (s *Service) handle(e *event.Event[process.Snapshot]) {
	if len(s.handlers) == 0 {
		s.logger.Debug("process event", "event", e.Type(), "pid", e.Context.ProcessID,
			"name", e.Context.Name, "core", e.Context.CoreID, "cycle", e.Context.Cycle)
		return
	}
	for _, handler := range s.handlers {
		handler(e)
	}
}

func (s *Service) onTick(cycle uint64) {
	s.runtime.onTick(s.ctx)
	if every := s.config.SnapshotEvery; every > 0 && cycle%every == 0 {
		if _, err := s.WriteMemorySnapshot(s.ctx, cycle); err != nil {
			s.logger.Error("failed to write memory snapshot", "cycle", cycle, "error", err)
		}
	}
}

// MemorySnapshot returns total, used and free memory with resident count and fragmentation
func (s *Service) MemorySnapshot() memory.Summary {
	return s.scheduler.Memory().Summary()
}

// Listing collects the data behind screen -ls
func (s *Service) Listing(ctx context.Context) (*report.Listing, error) {
	used, total := s.scheduler.CoreUtilization()
	running, err := s.scheduler.ListRunning(ctx)
	if err != nil {
		return nil, err
	}
	finished, err := s.scheduler.ListFinished(ctx)
	if err != nil {
		return nil, err
	}
	return &report.Listing{SessionID: s.sessionID, CPU: report.CPU{Cores: total, Used: used}, Running: running, Finished: finished}, nil
}

// WriteListing renders screen -ls to w
func (s *Service) WriteListing(ctx context.Context, w io.Writer) error {
	listing, err := s.Listing(ctx)
	if err != nil {
		return err
	}
	return report.WriteListing(w, listing)
}

// ReportUtil writes the utilisation report to report-url and returns its URL
func (s *Service) ReportUtil(ctx context.Context) (string, error) {
	listing, err := s.Listing(ctx)
	if err != nil {
		return "", err
	}
	return s.reports.Write(ctx, s.config.ReportURL, func(w io.Writer) error {
		return report.WriteUtilReport(w, listing)
	})
}

// ProcessSMI renders CPU and memory usage per resident process to w
func (s *Service) ProcessSMI(ctx context.Context, w io.Writer) error {
	used, total := s.scheduler.CoreUtilization()
	resident, err := s.scheduler.ListResident(ctx)
	if err != nil {
		return err
	}
	return report.WriteProcessSMI(w, &report.SMI{
		CPU:      report.CPU{Cores: total, Used: used},
		Memory:   s.MemorySnapshot(),
		Resident: resident,
	})
}

// VMStat renders memory totals, cpu ticks and paging counters to w
func (s *Service) VMStat(w io.Writer) error {
	return report.WriteVMStat(w, &report.VMStat{Memory: s.MemorySnapshot(), Counters: s.tracker.Snapshot()})
}

// WriteMemorySnapshot writes memory_stamp_<cycle>.txt under snapshot-url
func (s *Service) WriteMemorySnapshot(ctx context.Context, cycle uint64) (URL string, err error) {
	ctx, span := tracing.StartSpan(ctx, "memory.snapshot", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	manager := s.scheduler.Memory()
	snapshot := &report.MemorySnapshot{
		SessionID: s.sessionID,
		Cycle:     cycle,
		Timestamp: clock.Now(),
		Summary:   manager.Summary(),
		Regions:   manager.Layout(),
	}
	return s.snapshots.Write(ctx, report.SnapshotName(cycle), func(w io.Writer) error {
		return report.WriteMemorySnapshot(w, snapshot)
	})
}

// Wait blocks until every submitted process is finished or only processes
// that can never be placed remain, polling every interval.
func (s *Service) Wait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pending, err := s.scheduler.ListByState(ctx, process.StateNew, process.StateWaitingForMemory, process.StateReady, process.StateRunning)
		if err != nil {
			return err
		}
		done := true
		for _, snapshot := range pending {
			if !snapshot.Unplaceable {
				done = false
				break
			}
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
