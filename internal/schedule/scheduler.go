package schedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/openquiz/quizmaster-api/internal/task"
)

// Clock abstracts wall-clock access so slot transitions are testable
// without waiting for real time to pass.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// Submitter is the slice of the broker the scheduler depends on.
type Submitter interface {
	Submit(ctx context.Context, kind string, payload json.RawMessage) (*task.Task, error)
}

// JobSpec is a named recurring unit of work. NextFireAt advances
// monotonically; a spec never fires twice for the same computed slot, and
// after an outage spanning several slots only the most recent missed slot
// produces a task.
type JobSpec struct {
	ID      string
	Kind    string
	Rule    Rule
	Enabled bool

	nextFireAt time.Time
}

// NextFireAt exposes the spec's next computed slot, mainly for logging
// and tests.
func (s *JobSpec) NextFireAt() time.Time { return s.nextFireAt }

// Scheduler evaluates its recurring-job table on a fixed tick and submits a
// task for each spec whose slot has passed. It runs as a single loop; if
// several scheduler processes share a deployment, external coordination must
// elect one, the same way workers coordinate through the task claim.
type Scheduler struct {
	specs     []*JobSpec
	submitter Submitter
	clock     Clock
	tick      time.Duration
	logger    *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the given specs. Each spec's first
// slot is computed from the clock's current time, so a spec never fires for
// a slot that predates process start.
func NewScheduler(specs []*JobSpec, submitter Submitter, clock Clock, tick time.Duration, logger *slog.Logger) *Scheduler {
	now := clock.Now()
	for _, spec := range specs {
		spec.nextFireAt = spec.Rule.Next(now)
	}

	return &Scheduler{
		specs:     specs,
		submitter: submitter,
		clock:     clock,
		tick:      tick,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started", "tick", s.tick, "specs", len(s.specs))
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Tick evaluates every spec once against the current clock time. Exported
// so tests can drive slot transitions deterministically.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	for _, spec := range s.specs {
		if !spec.Enabled {
			continue
		}
		// Never fire a slot that is still in the future; clock changes only
		// delay a fire, they cannot produce an early one.
		if now.Before(spec.nextFireAt) {
			continue
		}

		slot := spec.nextFireAt
		t, err := s.submitter.Submit(ctx, spec.Kind, nil)
		if err != nil {
			// Leave nextFireAt untouched so the next tick retries the slot.
			s.logger.Error("failed to submit recurring task",
				"job_id", spec.ID,
				"task_kind", spec.Kind,
				"slot", slot,
				"error", err)
			continue
		}

		// Advance directly from the rule to the first slot after now: one
		// fire per slot, and a multi-slot outage collapses to this single
		// catch-up fire.
		spec.nextFireAt = spec.Rule.Next(now)

		s.logger.Info("recurring task submitted",
			"job_id", spec.ID,
			"task_kind", spec.Kind,
			"task_id", t.ID,
			"slot", slot,
			"next_fire_at", spec.nextFireAt)
	}
}
