package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Submission errors surfaced synchronously to the caller. In both cases no
// task row is left behind.
var (
	// ErrUnknownKind is returned by Submit for a kind with no registered handler.
	ErrUnknownKind = errors.New("no handler registered for task kind")
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue.
	QueueSize int

	// MaxAttempts is the number of executions a task is allowed in total
	// before a failure becomes terminal.
	MaxAttempts int

	// RetryBackoff is the delay before requeueing a failed attempt. The
	// delay doubles with each subsequent attempt.
	RetryBackoff time.Duration

	// Timeout bounds a single handler execution. Zero disables the limit.
	Timeout time.Duration

	// StuckTaskAge defines how long a task can be in the running state
	// before it is considered stuck and released back to pending.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks.
	// If zero, defaults to 5 minutes.
	StuckTaskCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		MaxAttempts:            3,
		RetryBackoff:           5 * time.Second,
		Timeout:                10 * time.Minute,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background task processing: it persists submissions, hands
// them to a pool of workers, and records each outcome. Claiming a task is an
// atomic compare-and-set in the Store, so at most one worker runs a given
// task at a time even when the queue redelivers it.
type Runner struct {
	store      Store
	queue      *Queue
	handlers   map[string]HandlerFunc
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner. Handlers are registered with Register
// before Start is called.
func NewRunner(store Store, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:      store,
		queue:      NewQueue(config.QueueSize, logger),
		handlers:   make(map[string]HandlerFunc),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
	}
}

// Register binds a handler to a task kind. Not safe to call after Start.
func (r *Runner) Register(kind string, handler HandlerFunc) {
	r.handlers[kind] = handler
}

// Submit persists a new task of the given kind and enqueues it for
// execution. It returns immediately; callers observe progress by polling
// the store. A submission error means no task was created.
func (r *Runner) Submit(ctx context.Context, kind string, payload json.RawMessage) (*Task, error) {
	if _, ok := r.handlers[kind]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	t := New(kind, payload)
	if err := r.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(t); err != nil {
		// Undo the row so the caller's "not accepted" matches the store.
		if delErr := r.store.DeleteTask(ctx, t.ID); delErr != nil {
			r.logger.Error("failed to delete unqueued task",
				"task_id", t.ID,
				"error", delErr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return t, nil
}

// Start recovers unfinished tasks from previous runs and launches the
// worker pool and the stuck-task monitor.
func (r *Runner) Start() error {
	if err := r.recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the runner: no new claims are made and
// in-flight handlers run to completion (or their timeout).
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// recover loads unfinished tasks from the store: pending tasks are requeued
// and running tasks (interrupted by a crash) are released and requeued.
func (r *Runner) recover() error {
	ctx := context.Background()

	pending, err := r.store.ListByStatus(ctx, StatusPending, 0)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}

	running, err := r.store.ListByStatus(ctx, StatusRunning, 0)
	if err != nil {
		return fmt.Errorf("failed to list running tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"running_count", len(running))

	for _, t := range pending {
		r.requeue(t)
	}

	for _, t := range running {
		if err := r.store.ReleaseTask(ctx, t.ID, "released after restart"); err != nil {
			r.logger.Error("failed to release interrupted task",
				"task_id", t.ID,
				"task_kind", t.Kind,
				"error", err)
			continue
		}
		r.requeue(t)
	}

	return nil
}

// requeue puts a task back on the in-memory queue, logging when the queue
// refuses it. A refused task stays pending in the store and is picked up by
// the next recovery pass.
func (r *Runner) requeue(t *Task) {
	if err := r.queue.Enqueue(t); err != nil {
		r.logger.Error("failed to requeue task",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"error", err)
	}
}

// worker processes tasks from the queue until the runner stops.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case t, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.processTask(t, id)
		}
	}
}

// processTask claims and executes a single task and records the outcome.
func (r *Runner) processTask(t *Task, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"task_id", t.ID,
		"task_kind", t.Kind,
		"worker_id", workerID,
	)

	claimed, err := r.store.ClaimTask(ctx, t.ID, time.Now().UTC())
	if err != nil {
		log.Error("failed to claim task", "error", err)
		return
	}
	if claimed == nil {
		// Another worker won the claim, or the task already finished.
		// Redelivery is expected under at-least-once semantics.
		log.Debug("task not claimable, skipping")
		return
	}

	log.Info("processing task", "attempt", claimed.Attempts)

	result, execErr := r.execute(claimed)

	if execErr == nil {
		if err := r.store.MarkSucceeded(ctx, claimed.ID, result, time.Now().UTC()); err != nil {
			log.Error("failed to mark task succeeded", "error", err)
		}
		log.Info("task completed successfully")
		return
	}

	errorKind := classify(execErr)
	log.Error("task execution failed",
		"error", execErr,
		"error_kind", errorKind,
		"attempt", claimed.Attempts)

	if claimed.Attempts < r.config.MaxAttempts {
		if err := r.store.ReleaseTask(ctx, claimed.ID, execErr.Error()); err != nil {
			log.Error("failed to release task for retry", "error", err)
			return
		}
		r.scheduleRetry(claimed)
		return
	}

	if err := r.store.MarkFailed(ctx, claimed.ID, errorKind, execErr.Error(), time.Now().UTC()); err != nil {
		log.Error("failed to mark task failed", "error", err)
	}
}

// execute runs the task's handler under the configured timeout, converting
// panics into errors so one bad handler cannot take down a worker.
func (r *Runner) execute(t *Task) (result json.RawMessage, err error) {
	handler, ok := r.handlers[t.Kind]
	if !ok {
		// Submission validates the kind, so this only happens for rows
		// written by a newer deployment.
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}

	// Shutdown drains in-flight work, so the handler context is not tied to
	// the runner context; only the per-task timeout cancels it.
	ctx := context.Background()
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, p)
		}
	}()

	result, err = handler(ctx, t)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("handler exceeded %s timeout: %w", r.config.Timeout, context.DeadlineExceeded)
	}
	return result, err
}

// scheduleRetry requeues the task after an exponential backoff delay.
func (r *Runner) scheduleRetry(t *Task) {
	delay := r.config.RetryBackoff
	for i := 1; i < t.Attempts; i++ {
		delay *= 2
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-r.ctx.Done():
				// Shutting down; the pending row is recovered on next start.
				return
			case <-timer.C:
			}
		}
		r.requeue(t)
	}()
}

// errHandlerPanic wraps panics recovered from handlers.
var errHandlerPanic = errors.New("handler panicked")

// classify maps an execution error to its failure classification.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, errHandlerPanic):
		return FailurePanic
	default:
		return FailureHandler
	}
}

// stuckTaskMonitor periodically releases tasks that have been running for
// longer than the configured age. This covers workers lost to crashes in
// other processes sharing the store.
func (r *Runner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.ListByStatus(ctx, StatusRunning, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}

			for _, t := range stuck {
				if err := r.store.ReleaseTask(ctx, t.ID, "released after being stuck in running state"); err != nil {
					r.logger.Error("failed to release stuck task",
						"task_id", t.ID,
						"task_kind", t.Kind,
						"error", err)
					continue
				}
				r.logger.Info("requeued stuck task",
					"task_id", t.ID,
					"task_kind", t.Kind)
				r.requeue(t)
			}
		}
	}
}
