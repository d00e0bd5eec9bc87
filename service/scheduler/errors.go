package scheduler

import "errors"

var (
	// ErrDuplicateSubmission is returned when a name is already held by a descriptor in the process table.
	ErrDuplicateSubmission = errors.New("scheduler: duplicate submission")
	// ErrUnknownProcess is returned for a name or id with no descriptor.
	ErrUnknownProcess = errors.New("scheduler: unknown process")
	// ErrInvalidRequest is returned for an empty name or zero instruction count.
	ErrInvalidRequest = errors.New("scheduler: invalid request")
)
