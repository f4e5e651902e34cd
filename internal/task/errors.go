package task

import "errors"

// Common errors returned by the task package
var (
	ErrNilWork            = errors.New("task work cannot be nil")
	ErrInvalidPriority    = errors.New("invalid task priority")
	ErrInvalidRetryPolicy = errors.New("invalid task retry policy")
	ErrTaskTimeout        = errors.New("task execution timed out")
	ErrTaskPanicked       = errors.New("task execution panicked")
	ErrProcessorStopped   = errors.New("task processor stopped")
)
