package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openquiz/quizmaster-api/internal/api/shared"
	"github.com/openquiz/quizmaster-api/internal/task"
)

// Broker accepts tasks for asynchronous execution.
type Broker interface {
	Submit(ctx context.Context, kind string, payload json.RawMessage) (*task.Task, error)
}

// TaskReader loads task records for status polling.
type TaskReader interface {
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
}

// SubmitTaskRequest is the request body for submitting a task.
type SubmitTaskRequest struct {
	Kind    string          `json:"kind" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubmitTaskResponse is returned when a task has been accepted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// TaskStatusResponse reports the current state of a task. Result is
// populated only for succeeded tasks, Error only for failed ones.
type TaskStatusResponse struct {
	TaskID      string          `json:"task_id"`
	Kind        string          `json:"kind"`
	State       string          `json:"state"`
	Attempts    int             `json:"attempts"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *TaskError      `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// TaskError describes why a task failed.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskHandler exposes task submission and status polling.
type TaskHandler struct {
	broker Broker
	tasks  TaskReader
	logger *slog.Logger
}

// NewTaskHandler creates a task handler. If logger is nil, slog.Default()
// is used.
func NewTaskHandler(broker Broker, tasks TaskReader, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		broker: broker,
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// SubmitTask handles POST /tasks. It validates the kind, persists and
// enqueues the task, and responds 202 with the task ID. Polling the
// returned ID is the only way to observe the outcome.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Missing task kind", err)
		return
	}

	t, err := h.broker.Submit(ctx, req.Kind, req.Payload)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Info("task accepted",
		slog.String("trace_id", shared.GetTraceID(ctx)),
		slog.String("task_id", t.ID.String()),
		slog.String("kind", t.Kind))

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: t.ID.String(),
		State:  string(t.Status),
	})
}

// GetTaskStatus handles GET /tasks/{taskID}. A task that lost a retry
// and is waiting to be reclaimed reports PENDING again; clients should
// treat any non-terminal state as "still working".
func (h *TaskHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	t, err := h.tasks.GetTask(ctx, id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := TaskStatusResponse{
		TaskID:      t.ID.String(),
		Kind:        t.Kind,
		State:       string(t.Status),
		Attempts:    t.Attempts,
		SubmittedAt: t.SubmittedAt,
		FinishedAt:  t.FinishedAt,
	}
	switch t.Status {
	case task.StatusSucceeded:
		resp.Result = t.Result
	case task.StatusFailed:
		resp.Error = &TaskError{Kind: t.ErrorKind, Message: t.ErrorMessage}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
