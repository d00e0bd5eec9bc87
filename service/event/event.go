package event

import (
	"time"

	"github.com/viant/schedsim/internal/clock"
)

// Lifecycle event types emitted by the scheduler.
const (
	TypeSubmitted   = "submitted"
	TypeAdmitted    = "admitted"
	TypeDispatched  = "dispatched"
	TypePreempted   = "preempted"
	TypeEvicted     = "evicted"
	TypeTerminated  = "terminated"
	TypeStopped     = "stopped"
	TypeUnplaceable = "unplaceable"
)

// Context identifies the process and core an event relates to
type Context struct {
	ProcessID int    `json:"processID"`
	Name      string `json:"name"`
	EventType string `json:"eventType"`
	CoreID    int    `json:"coreID"`
	Cycle     uint64 `json:"cycle"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

// Type returns the event type or empty string
func (e *Event[T]) Type() string {
	if e == nil || e.Context == nil {
		return ""
	}
	return e.Context.EventType
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Data:      data,
	}
}
