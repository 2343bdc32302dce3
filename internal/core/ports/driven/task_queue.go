package driven

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// TaskQueue moves background tasks between the API process and the
// workers. Redis Streams backs it when available; a PostgreSQL
// implementation covers single-store deployments. A dequeued task is
// invisible to other consumers until it is acked, nacked, or reclaimed
// as stale.
type TaskQueue interface {
	// Enqueue adds one pending task.
	Enqueue(ctx context.Context, task *domain.Task) error

	// EnqueueBatch adds several tasks in one shot. All land or none do.
	EnqueueBatch(ctx context.Context, tasks []*domain.Task) error

	// Dequeue claims the next due task, picking higher priority first.
	// Whether it waits for work is backend-specific; nil, nil means
	// nothing is ready.
	Dequeue(ctx context.Context) (*domain.Task, error)

	// DequeueWithTimeout claims the next due task, waiting up to
	// timeout seconds before returning nil, nil.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack settles a claimed task as completed.
	Ack(ctx context.Context, taskID string) error

	// Nack settles a claimed task as failed. Tasks with attempts left
	// are re-queued with backoff; exhausted ones stay failed with
	// reason recorded.
	Nack(ctx context.Context, taskID string, reason string) error

	// GetTask looks up a task by ID for status inspection. Backends
	// expire settled records, so old task IDs go unknown eventually.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ListTasks returns tasks matching the filter, newest first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// CancelTask fails a task that has not started. Claimed and settled
	// tasks cannot be cancelled.
	CancelTask(ctx context.Context, taskID string) error

	// PurgeTasks drops settled tasks older than olderThan seconds and
	// reports how many went.
	PurgeTasks(ctx context.Context, olderThan int) (int, error)

	// Stats summarizes queue depth by status.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}

// TaskFilter narrows ListTasks. Zero-valued fields match everything.
type TaskFilter struct {
	DocumentID string
	Status     domain.TaskStatus
	Type       domain.TaskType

	Limit  int
	Offset int
}

// QueueStats is a point-in-time census of the queue, exposed on the
// admin API and used by tests to watch work drain.
type QueueStats struct {
	PendingCount    int64 `json:"pending_count"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`

	// OldestPendingAge is seconds since the oldest pending task was
	// enqueued; a growing value means the workers are not keeping up.
	OldestPendingAge int64 `json:"oldest_pending_age"`
}

// SchedulerStore persists the recurring maintenance schedule. Separate
// from TaskQueue: schedules are long-lived configuration, tasks are
// transient queue records.
type SchedulerStore interface {
	// GetScheduledTask retrieves one schedule by ID.
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// ListScheduledTasks returns every schedule.
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SaveScheduledTask creates or replaces a schedule.
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteScheduledTask removes a schedule.
	DeleteScheduledTask(ctx context.Context, id string) error

	// GetDueScheduledTasks returns enabled schedules past their next
	// run time.
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun records a dispatch attempt and advances the next
	// run one interval out. lastError is "" on success.
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
