package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions can happen from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Priority controls dequeue order. Higher values are served first.
type Priority int

// Supported priority levels
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// String returns the lowercase name of the priority
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the four supported levels.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// rank inverts the priority so that the smallest rank dequeues first.
func (p Priority) rank() int {
	return int(PriorityCritical - p)
}

// ParsePriority converts a case-insensitive name into a Priority.
// An empty string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Work is a unit of deferred work. It captures its own arguments and
// returns a serializable result. The context is cancelled when the task's
// timeout elapses or the processor stops; honouring it is up to the work.
type Work func(ctx context.Context) (any, error)

// Record describes one submitted unit of work and its lifecycle state.
// All mutable fields are guarded by the owning Processor's mutex.
type Record struct {
	id         uuid.UUID
	name       string
	work       Work
	priority   Priority
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	backoff    retry.Backoff

	status      TaskStatus
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	retryCount  int
	result      any
	err         error
}

// ID returns the record's unique identifier
func (r *Record) ID() uuid.UUID {
	return r.id
}

// Name returns the human readable label given at submission
func (r *Record) Name() string {
	return r.name
}

// Priority returns the priority fixed at submission
func (r *Record) Priority() Priority {
	return r.priority
}

// Snapshot is a point-in-time, serializable view of a Record.
type Snapshot struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Priority    string     `json:"priority"`
	Status      TaskStatus `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// snapshot copies the record. Callers must hold the processor lock.
func (r *Record) snapshot() Snapshot {
	s := Snapshot{
		ID:         r.id,
		Name:       r.name,
		Priority:   r.priority.String(),
		Status:     r.status,
		RetryCount: r.retryCount,
		MaxRetries: r.maxRetries,
		CreatedAt:  r.createdAt,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		s.CompletedAt = &t
	}
	switch r.status {
	case TaskStatusCompleted:
		s.Result = r.result
	case TaskStatusFailed, TaskStatusRetrying:
		if r.err != nil {
			s.Error = r.err.Error()
		}
	case TaskStatusPending, TaskStatusRunning:
		// a retried record keeps reporting its last failed attempt
		if r.retryCount > 0 && r.err != nil {
			s.Error = r.err.Error()
		}
	}
	return s
}
