package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task. Transitions are monotonic:
// PENDING -> RUNNING -> {SUCCEEDED, FAILED}, with the single exception that
// the runner may release a RUNNING task back to PENDING for a retry or after
// crash recovery. A terminal task never leaves its terminal state.
type Status string

// Possible task status values
const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Task kind constants. Each kind selects the handler registered for it.
const (
	// KindPerformanceReport generates the bulk user performance CSV artifact.
	KindPerformanceReport = "performance_report"

	// KindDailyReminder fans out inactivity reminders over each eligible
	// user's enabled channels.
	KindDailyReminder = "daily_reminder"

	// KindMonthlyReport computes per-user monthly activity and emails the
	// monthly report template.
	KindMonthlyReport = "monthly_report"
)

// Failure classifications recorded on FAILED tasks.
const (
	// FailureHandler marks an error returned by the handler itself.
	FailureHandler = "handler_error"

	// FailureTimeout marks a handler cancelled for exceeding the configured
	// maximum execution duration.
	FailureTimeout = "timeout"

	// FailurePanic marks a handler that panicked during execution.
	FailurePanic = "panic"
)

// Task represents a unit of background work with a tracked lifecycle.
type Task struct {
	ID           uuid.UUID
	Kind         string
	Payload      json.RawMessage
	Status       Status
	Result       json.RawMessage // set only when Status is SUCCEEDED
	ErrorKind    string          // set only when Status is FAILED
	ErrorMessage string          // set only when Status is FAILED
	Attempts     int
	SubmittedAt  time.Time
	StartedAt    *time.Time // nil until first claimed
	FinishedAt   *time.Time // nil until terminal
}

// New creates a pending task of the given kind.
func New(kind string, payload json.RawMessage) *Task {
	return &Task{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     payload,
		Status:      StatusPending,
		SubmittedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// HandlerFunc executes the work for one task kind. The returned payload is
// recorded as the task result on success. Handlers must be safe to re-run:
// the broker guarantees at-least-once delivery, not exactly-once.
type HandlerFunc func(ctx context.Context, t *Task) (json.RawMessage, error)

// Store defines the interface for persisting tasks. All status mutations go
// through it; the claim is the only coordination primitive shared between
// workers.
type Store interface {
	// CreateTask persists a new pending task.
	CreateTask(ctx context.Context, t *Task) error

	// DeleteTask removes a task. Used only to undo creation when the queue
	// rejects the submission.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// GetTask retrieves a task by ID, returning store.ErrTaskNotFound when
	// it does not exist.
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)

	// ClaimTask atomically transitions the task from PENDING to RUNNING and
	// increments its attempt counter. It returns the claimed task, or nil
	// when the task was not in PENDING state (another worker won the claim,
	// or the task already finished).
	ClaimTask(ctx context.Context, id uuid.UUID, startedAt time.Time) (*Task, error)

	// MarkSucceeded transitions a RUNNING task to SUCCEEDED with its result.
	MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage, finishedAt time.Time) error

	// MarkFailed transitions a RUNNING task to FAILED with a classified error.
	MarkFailed(ctx context.Context, id uuid.UUID, errorKind, errorMsg string, finishedAt time.Time) error

	// ReleaseTask transitions a RUNNING task back to PENDING so it can be
	// claimed again (retry or crash recovery).
	ReleaseTask(ctx context.Context, id uuid.UUID, reason string) error

	// ListByStatus retrieves tasks in the given status. If olderThan is
	// non-zero, only tasks whose last transition is older than the duration
	// are returned.
	ListByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Task, error)
}
