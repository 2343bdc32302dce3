package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockSchedulerStore is an in-memory SchedulerStore for testing.
type MockSchedulerStore struct {
	mu        sync.RWMutex
	schedules map[string]*domain.ScheduledTask

	// GetDueFn overrides due-schedule lookup (optional)
	GetDueFn func() ([]*domain.ScheduledTask, error)
	// UpdateLastRunFn overrides last-run bookkeeping (optional)
	UpdateLastRunFn func(id string, lastError string) error
}

// NewMockSchedulerStore creates a new MockSchedulerStore
func NewMockSchedulerStore() *MockSchedulerStore {
	return &MockSchedulerStore{schedules: make(map[string]*domain.ScheduledTask)}
}

func (m *MockSchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return schedule, nil
}

func (m *MockSchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ScheduledTask, 0, len(m.schedules))
	for _, schedule := range m.schedules {
		out = append(out, schedule)
	}
	return out, nil
}

func (m *MockSchedulerStore) SaveScheduledTask(ctx context.Context, schedule *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *MockSchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *MockSchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	if m.GetDueFn != nil {
		return m.GetDueFn()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.ScheduledTask
	for _, schedule := range m.schedules {
		if schedule.Enabled && schedule.IsDue() {
			due = append(due, schedule)
		}
	}
	return due, nil
}

func (m *MockSchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	if m.UpdateLastRunFn != nil {
		return m.UpdateLastRunFn(id, lastError)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	schedule.UpdateNextRun()
	schedule.LastError = lastError
	return nil
}
