// Package tracing wires OpenTelemetry into the simulator. Submissions,
// dispatched execution slices and snapshot writes open spans; when no provider
// is installed the spans are no-ops.
package tracing
