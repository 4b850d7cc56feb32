package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed and will not be retried.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task was deferred and will be
	// re-evaluated on the next scheduling cycle.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusCancelled indicates the task was withdrawn before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state. Blocked is not
// terminal: blocked tasks are re-queued on the next cycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TypeUnknown is the declared type for tasks whose author did not specify one.
// The classifier decides the effective type for such tasks.
const TypeUnknown = "unknown"

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// DeclaredType is the task type stated by the workflow author.
	// May be TypeUnknown, in which case classification decides.
	DeclaredType string `json:"declared_type,omitempty"`
	// Priority orders ready tasks; lower is higher priority.
	Priority int `json:"priority"`
	// EstimatedHours is the effort estimate for the task.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	// Order is irrelevant.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the name of the agent working on this task, if any.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was dispatched, if it has been.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Result holds the execution output for completed tasks.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries caps the number of retries before the task is finalized
	// as failed. Zero means the orchestrator default applies.
	MaxRetries int `json:"max_retries,omitempty"`
	// Classification is the attached classifier output, set once when the
	// task is admitted and immutable afterwards.
	Classification *Classification `json:"classification,omitempty"`
}

// EffectiveType returns the classified type when a classification is
// attached, falling back to the declared type.
func (t *Task) EffectiveType() string {
	if t.Classification != nil {
		return t.Classification.DetectedType
	}
	if t.DeclaredType != "" {
		return t.DeclaredType
	}
	return TypeUnknown
}
