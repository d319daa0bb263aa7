package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquiz/quizmaster-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeSubmitter records submissions and can be made to fail.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (s *fakeSubmitter) Submit(ctx context.Context, kind string, payload json.RawMessage) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.submitted = append(s.submitted, kind)
	return task.New(kind, payload), nil
}

func (s *fakeSubmitter) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted...)
}

func TestScheduler_FiresOncePerSlot(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}
	submitter := &fakeSubmitter{}

	spec := &JobSpec{
		ID:      "daily-reminders",
		Kind:    task.KindDailyReminder,
		Rule:    DailyRule{Hour: 18},
		Enabled: true,
	}
	s := NewScheduler([]*JobSpec{spec}, submitter, clock, time.Minute, testLogger())

	// Still before the slot: nothing fires.
	s.Tick(context.Background())
	assert.Empty(t, submitter.kinds())

	// Cross 18:00: exactly one fire, regardless of how many ticks observe
	// the passed slot.
	clock.Set(time.Date(2026, 3, 10, 18, 0, 30, 0, time.UTC))
	s.Tick(context.Background())
	clock.Set(time.Date(2026, 3, 10, 18, 5, 0, 0, time.UTC))
	s.Tick(context.Background())
	s.Tick(context.Background())

	require.Len(t, submitter.kinds(), 1)
	assert.Equal(t, task.KindDailyReminder, submitter.kinds()[0])
	assert.Equal(t, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC), spec.NextFireAt())
}

func TestScheduler_OutageCollapsesToSingleCatchUp(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}
	submitter := &fakeSubmitter{}

	spec := &JobSpec{
		ID:      "daily-reminders",
		Kind:    task.KindDailyReminder,
		Rule:    DailyRule{Hour: 18},
		Enabled: true,
	}
	s := NewScheduler([]*JobSpec{spec}, submitter, clock, time.Minute, testLogger())

	// Three days pass without a tick (process down). The backlog of missed
	// slots produces one task, not three.
	clock.Set(time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC))
	s.Tick(context.Background())

	require.Len(t, submitter.kinds(), 1)
	assert.Equal(t, time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC), spec.NextFireAt())
}

func TestScheduler_SubmitFailureRetriesSlotNextTick(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}
	submitter := &fakeSubmitter{err: errors.New("broker saturated")}

	spec := &JobSpec{
		ID:      "daily-reminders",
		Kind:    task.KindDailyReminder,
		Rule:    DailyRule{Hour: 18},
		Enabled: true,
	}
	s := NewScheduler([]*JobSpec{spec}, submitter, clock, time.Minute, testLogger())

	slot := spec.NextFireAt()
	clock.Set(time.Date(2026, 3, 10, 18, 1, 0, 0, time.UTC))
	s.Tick(context.Background())

	// The slot is not consumed by a failed submission.
	assert.Empty(t, submitter.kinds())
	assert.Equal(t, slot, spec.NextFireAt())

	submitter.mu.Lock()
	submitter.err = nil
	submitter.mu.Unlock()

	s.Tick(context.Background())
	require.Len(t, submitter.kinds(), 1)
	assert.True(t, spec.NextFireAt().After(clock.Now()))
}

func TestScheduler_DisabledSpecNeverFires(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}
	submitter := &fakeSubmitter{}

	spec := &JobSpec{
		ID:      "monthly-reports",
		Kind:    task.KindMonthlyReport,
		Rule:    MonthlyRule{Day: 1, Hour: 8},
		Enabled: false,
	}
	s := NewScheduler([]*JobSpec{spec}, submitter, clock, time.Minute, testLogger())

	clock.Set(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	s.Tick(context.Background())

	assert.Empty(t, submitter.kinds())
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)}
	s := NewScheduler(nil, &fakeSubmitter{}, clock, 10*time.Millisecond, testLogger())

	s.Start()
	// Idempotent: a second Start must not spawn a second loop.
	s.Start()

	time.Sleep(25 * time.Millisecond)

	s.Stop()
	// Idempotent: a second Stop must not panic on a closed channel.
	s.Stop()
}
