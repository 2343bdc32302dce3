package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// MockTaskQueue is an in-memory mock of TaskQueue for testing
type MockTaskQueue struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	// When set, a hook replaces the default behavior of its method.
	EnqueueFn func(task *domain.Task) error
	DequeueFn func() (*domain.Task, error)
	AckFn     func(taskID string) error
	NackFn    func(taskID, reason string) error
	PingFn    func() error

	// DequeueDelay makes DequeueWithTimeout block, like a real queue
	DequeueDelay time.Duration
}

// NewMockTaskQueue creates a new MockTaskQueue
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		tasks: make(map[string]*domain.Task),
	}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.EnqueueFn != nil {
		return m.EnqueueFn(task)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	return nil
}

func (m *MockTaskQueue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	for _, task := range tasks {
		if err := m.Enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockTaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	if m.DequeueFn != nil {
		return m.DequeueFn()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		task := m.tasks[id]
		if task != nil && task.Status == domain.TaskStatusPending && task.IsReady() {
			task.MarkProcessing()
			return task, nil
		}
	}
	return nil, nil
}

func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if m.DequeueDelay > 0 {
		select {
		case <-time.After(m.DequeueDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Dequeue(ctx)
}

func (m *MockTaskQueue) Ack(ctx context.Context, taskID string) error {
	if m.AckFn != nil {
		return m.AckFn(taskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		task.MarkCompleted()
	}
	return nil
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	if m.NackFn != nil {
		return m.NackFn(taskID, reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if task.CanRetry() {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}
	return nil
}

func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func (m *MockTaskQueue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*domain.Task
	for _, id := range m.order {
		task := m.tasks[id]
		if task == nil {
			continue
		}
		if filter.DocumentID != "" && task.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *MockTaskQueue) CancelTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if task.Status != domain.TaskStatusPending {
		return domain.ErrInvalidTransition
	}
	task.MarkFailed("cancelled")
	return nil
}

func (m *MockTaskQueue) PurgeTasks(ctx context.Context, olderThan int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(olderThan) * time.Second)
	purged := 0
	for id, task := range m.tasks {
		done := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if done && task.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &driven.QueueStats{}
	for _, task := range m.tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

func (m *MockTaskQueue) Close() error {
	return nil
}

// Enqueued returns every task passed to Enqueue, in order (for assertions)
func (m *MockTaskQueue) Enqueued() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]*domain.Task, 0, len(m.order))
	for _, id := range m.order {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
