package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task type constants
const (
	// TaskTypeIssueDeadline checks an issue once its due date has passed.
	TaskTypeIssueDeadline = "issue_deadline"

	// TaskTypeSendNotification delivers a queued notification.
	TaskTypeSendNotification = "send_notification"
)

// Common task errors
var (
	// ErrTaskNotFound is returned when a task does not exist in the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnknownTaskType is returned when no handler is registered for a task type.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidTask is returned when a task cannot be scheduled as given.
	ErrInvalidTask = errors.New("invalid task")
)

// Handle identifies a scheduled task. It is opaque to callers; the zero
// value means no task.
type Handle string

// IsZero reports whether h refers to no task.
func (h Handle) IsZero() bool {
	return h == ""
}

// String returns the handle as stored.
func (h Handle) String() string {
	return string(h)
}

// ParseHandle returns the task ID a handle refers to.
func ParseHandle(h Handle) (uuid.UUID, error) {
	return uuid.Parse(string(h))
}

// Record is a persisted task.
type Record struct {
	ID        uuid.UUID
	Type      string
	Payload   []byte
	Status    TaskStatus
	RunAt     time.Time
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handle returns the handle of the task.
func (r *Record) Handle() Handle {
	return Handle(r.ID.String())
}

// HandlerFunc executes a task. Returning an error marks the attempt failed.
type HandlerFunc func(ctx context.Context, rec *Record) error

// Scheduler schedules deferred work.
type Scheduler interface {
	// Schedule persists a task that runs at or after runAt and returns its handle.
	Schedule(ctx context.Context, runAt time.Time, taskType string, payload []byte) (Handle, error)

	// Cancel prevents a pending task from running. Cancelling a zero,
	// unknown, running, finished or already cancelled handle is a no-op.
	Cancel(ctx context.Context, h Handle)
}

// TxScheduler is a Scheduler whose writes can join a database transaction.
type TxScheduler interface {
	Scheduler

	// WithTx returns a Scheduler that writes through tx. Tasks it schedules
	// become claimable once tx commits, so it never wakes the runner; call
	// Wake after the commit when a scheduled task is already due.
	WithTx(tx *sql.Tx) Scheduler

	// Wake makes the runner look for due tasks now.
	Wake()
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a new task.
	SaveTask(ctx context.Context, rec *Record) error

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*Record, error)

	// CancelTask moves a pending task to cancelled. It reports whether a task
	// was cancelled; tasks in any other state are left untouched.
	CancelTask(ctx context.Context, id uuid.UUID) (bool, error)

	// ClaimDueTasks marks up to limit pending tasks whose run time is not
	// after now as processing, increments their attempt count and returns them.
	// Implementations must never hand the same task to two callers.
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// UpdateTaskStatus updates the status of a task
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status TaskStatus, errorMsg string) error

	// RetryTask moves a task back to pending with a new run time.
	RetryTask(ctx context.Context, id uuid.UUID, runAt time.Time, errorMsg string) error

	// ResetStuckTasks moves tasks that have been processing for longer than
	// olderThan back to pending.
	ResetStuckTasks(ctx context.Context, olderThan time.Duration) (int, error)

	// WithTx returns a TaskStore that writes through tx.
	WithTx(tx *sql.Tx) TaskStore
}
