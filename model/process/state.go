package process

// State represents the lifecycle state of a descriptor
type State string

const (
	StateNew              State = "new"
	StateWaitingForMemory State = "waitingForMemory"
	StateReady            State = "ready"
	StateRunning          State = "running"
	StateTerminated       State = "terminated"
	// StateStopped marks a descriptor deactivated permanently before its last instruction.
	StateStopped State = "stopped"
)

// IsFinal reports whether the descriptor can never be queued again.
func (s State) IsFinal() bool {
	return s == StateTerminated || s == StateStopped
}

// IsResident reports whether a descriptor in this state holds memory frames.
func (s State) IsResident() bool {
	return s == StateReady || s == StateRunning
}

// Interrupt is a cooperative deactivation request checked by the execution engine.
type Interrupt int32

const (
	InterruptNone Interrupt = iota
	// InterruptPreempt releases the core; the descriptor stays eligible for requeue.
	InterruptPreempt
	// InterruptStop releases the core and retires the descriptor.
	InterruptStop
)
