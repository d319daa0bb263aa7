package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openquiz/quizmaster-api/internal/store"
)

// MockStore implements the Store interface in memory for testing. Its claim
// operation has the same compare-and-set semantics as the Postgres store,
// which is what the double-delivery tests exercise.
type MockStore struct {
	mutex           sync.RWMutex
	tasks           map[uuid.UUID]*Task
	transitionTimes map[uuid.UUID]time.Time

	// CreateFn, when set, overrides CreateTask (used to simulate a broker
	// that cannot accept submissions).
	CreateFn func(ctx context.Context, t *Task) error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks:           make(map[uuid.UUID]*Task),
		transitionTimes: make(map[uuid.UUID]time.Time),
	}
}

func (s *MockStore) CreateTask(ctx context.Context, t *Task) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, t)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	cp := *t
	s.tasks[t.ID] = &cp
	s.transitionTimes[t.ID] = time.Now()
	return nil
}

func (s *MockStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.tasks, id)
	delete(s.transitionTimes, id)
	return nil
}

func (s *MockStore) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MockStore) ClaimTask(ctx context.Context, id uuid.UUID, startedAt time.Time) (*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.Status != StatusPending {
		return nil, nil
	}

	t.Status = StatusRunning
	t.Attempts++
	started := startedAt
	t.StartedAt = &started
	s.transitionTimes[id] = time.Now()

	cp := *t
	return &cp, nil
}

func (s *MockStore) MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage, finishedAt time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != StatusRunning {
		return store.ErrUpdateFailed
	}

	t.Status = StatusSucceeded
	t.Result = result
	t.ErrorKind = ""
	t.ErrorMessage = ""
	finished := finishedAt
	t.FinishedAt = &finished
	s.transitionTimes[id] = time.Now()
	return nil
}

func (s *MockStore) MarkFailed(ctx context.Context, id uuid.UUID, errorKind, errorMsg string, finishedAt time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != StatusRunning {
		return store.ErrUpdateFailed
	}

	t.Status = StatusFailed
	t.ErrorKind = errorKind
	t.ErrorMessage = errorMsg
	finished := finishedAt
	t.FinishedAt = &finished
	s.transitionTimes[id] = time.Now()
	return nil
}

func (s *MockStore) ReleaseTask(ctx context.Context, id uuid.UUID, reason string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != StatusRunning {
		return store.ErrUpdateFailed
	}

	t.Status = StatusPending
	t.ErrorMessage = reason
	s.transitionTimes[id] = time.Now()
	return nil
}

func (s *MockStore) ListByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Task, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var out []*Task
	for id, t := range s.tasks {
		if t.Status != status {
			continue
		}
		if olderThan > 0 && s.transitionTimes[id].After(cutoff) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}
