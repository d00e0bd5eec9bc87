// Package process defines the schedulable unit of the simulator: the process
// descriptor, its lifecycle states and the execution engine that advances the
// instruction cursor while the descriptor is dispatched to a core.
package process
