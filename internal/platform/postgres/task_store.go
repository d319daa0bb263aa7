package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openquiz/quizmaster-api/internal/platform/logger"
	"github.com/openquiz/quizmaster-api/internal/store"
	"github.com/openquiz/quizmaster-api/internal/task"
)

// TaskStore implements the task.Store interface using PostgreSQL. The
// pending-to-running transition is a conditional UPDATE, which is the atomic
// claim the whole worker protocol hangs on.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to the given transaction.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

// CreateTask persists a new pending task.
func (s *TaskStore) CreateTask(ctx context.Context, t *task.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, kind, payload, status, attempts, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Kind,
		[]byte(t.Payload),
		t.Status,
		t.Attempts,
		t.SubmittedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"error", err)
		return fmt.Errorf("failed to save task: %w", MapError(err))
	}

	return nil
}

// DeleteTask removes a task row. Only used to undo a submission the queue
// rejected.
func (s *TaskStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", MapError(err))
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	query := `
		SELECT id, kind, payload, status, result, error_kind, error_message,
		       attempts, submitted_at, started_at, finished_at
		FROM tasks
		WHERE id = $1
	`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", store.ErrTaskNotFound, err)
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return t, nil
}

// ClaimTask atomically moves a pending task to running and bumps its
// attempt counter. The RETURNING row doubles as the claimed snapshot; no
// row back means another worker won or the task already finished.
func (s *TaskStore) ClaimTask(ctx context.Context, id uuid.UUID, startedAt time.Time) (*task.Task, error) {
	query := `
		UPDATE tasks
		SET status = $1, started_at = $2, attempts = attempts + 1
		WHERE id = $3 AND status = $4
		RETURNING id, kind, payload, status, result, error_kind, error_message,
		          attempts, submitted_at, started_at, finished_at
	`
	t, err := scanTask(s.db.QueryRowContext(ctx, query,
		task.StatusRunning, startedAt, id, task.StatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Not in pending state: claim lost, not an error.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim task: %w", MapError(err))
	}
	return t, nil
}

// MarkSucceeded finishes a running task with its result. Error columns are
// cleared so a release reason from an earlier attempt does not survive on a
// succeeded row.
func (s *TaskStore) MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage, finishedAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, result = $2, finished_at = $3, error_kind = NULL, error_message = NULL
		WHERE id = $4 AND status = $5
	`
	return s.finishTask(ctx, query,
		task.StatusSucceeded, []byte(result), finishedAt, id, task.StatusRunning)
}

// MarkFailed finishes a running task with a classified error.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, errorKind, errorMsg string, finishedAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, error_kind = $2, error_message = $3, finished_at = $4
		WHERE id = $5 AND status = $6
	`
	return s.finishTask(ctx, query,
		task.StatusFailed, errorKind, errorMsg, finishedAt, id, task.StatusRunning)
}

// ReleaseTask moves a running task back to pending for a retry. The release
// reason lands in error_message for operators; it is cleared again on the
// next terminal transition.
func (s *TaskStore) ReleaseTask(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2
		WHERE id = $3 AND status = $4
	`
	return s.finishTask(ctx, query,
		task.StatusPending, reason, id, task.StatusRunning)
}

// finishTask runs a guarded status transition and surfaces a missing or
// mismatched row as ErrUpdateFailed. The status guard in each query is what
// keeps terminal states terminal.
func (s *TaskStore) finishTask(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: task not in expected state", store.ErrUpdateFailed)
	}

	return nil
}

// ListByStatus retrieves tasks in the given status, optionally only those
// whose last start is older than the given duration.
func (s *TaskStore) ListByStatus(ctx context.Context, status task.Status, olderThan time.Duration) ([]*task.Task, error) {
	log := logger.FromContext(ctx)

	var query string
	var args []any

	if olderThan > 0 {
		query = `
			SELECT id, kind, payload, status, result, error_kind, error_message,
			       attempts, submitted_at, started_at, finished_at
			FROM tasks
			WHERE status = $1 AND started_at < $2
			ORDER BY submitted_at ASC
		`
		args = []any{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, kind, payload, status, result, error_kind, error_message,
			       attempts, submitted_at, started_at, finished_at
			FROM tasks
			WHERE status = $1
			ORDER BY submitted_at ASC
		`
		args = []any{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status",
			"status", status,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var payload, result []byte
	var errorKind, errorMessage sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.Kind,
		&payload,
		&t.Status,
		&result,
		&errorKind,
		&errorMessage,
		&t.Attempts,
		&t.SubmittedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Payload = json.RawMessage(payload)
	t.Result = json.RawMessage(result)
	t.ErrorKind = errorKind.String
	t.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Time
		t.FinishedAt = &v
	}
	return &t, nil
}
