package schedsim

import (
	"log/slog"
	"math/rand/v2"

	"github.com/viant/afs"
	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/service/event"
	"github.com/viant/schedsim/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service
type Option func(s *Service)

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFS sets the file system used for reports and memory snapshots
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithStepCost replaces the configured per instruction delay
func WithStepCost(cost process.StepCost) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithRand sets the random source drawing instruction counts and footprints
func WithRand(random *rand.Rand) Option {
	return func(s *Service) {
		s.random = random
	}
}

// WithEventHandler registers a lifecycle event handler. Handlers run on the
// listener goroutine, never on the scheduler.
func WithEventHandler(handler func(*event.Event[process.Snapshot])) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handler)
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}
