package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

// dequeuePollInterval is how often a blocking dequeue re-checks the table.
const dequeuePollInterval = time.Second

// taskColumns is the column list every task read shares.
const taskColumns = `id, type, document_id, payload, status, priority,
	attempts, max_attempts, error, created_at, updated_at,
	started_at, completed_at, scheduled_for`

// Queue is the Postgres-backed task queue, used when Redis is not
// configured. Claiming a task is a single UPDATE over a FOR UPDATE SKIP
// LOCKED subselect, so concurrent workers never pick the same row.
type Queue struct {
	db *sql.DB
}

// NewQueue wraps an existing database handle; the tasks table comes from
// the shared schema.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// execer lets insertTask run against the pool or an open transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTask(ctx context.Context, ex execer, task *domain.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for task %s: %w", task.ID, err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO tasks (id, type, document_id, payload, status, priority,
			attempts, max_attempts, error, created_at, updated_at, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID,
		task.Type,
		task.DocumentID,
		payload,
		task.Status,
		task.Priority,
		task.Attempts,
		task.MaxAttempts,
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
		task.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// Enqueue adds one task to the queue.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	return insertTask(ctx, q.db, task)
}

// EnqueueBatch inserts all tasks in one transaction; any failure rolls the
// whole batch back.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, task := range tasks {
		if err := insertTask(ctx, tx, task); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// claim atomically picks the most urgent due pending task and marks it
// processing. Returns nil, nil when the queue is empty.
func (q *Queue) claim(ctx context.Context) (*domain.Task, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $1, attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = $2 AND scheduled_for <= NOW()
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		domain.TaskStatusProcessing, domain.TaskStatusPending,
	)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Dequeue returns the next due task, or nil, nil when none is ready.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.claim(ctx)
}

// DequeueWithTimeout polls for up to timeout seconds before giving up with
// nil, nil. Postgres has no blocking pop, so this is where the waiting
// happens.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for {
		task, err := q.claim(ctx)
		if task != nil || err != nil {
			return task, err
		}

		wait := dequeuePollInterval
		if remaining := time.Until(deadline); remaining <= 0 {
			return nil, nil
		} else if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Ack marks a task completed.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	var id string
	err := q.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $1, completed_at = NOW(), updated_at = NOW(), error = ''
		WHERE id = $2
		RETURNING id`,
		domain.TaskStatusCompleted, taskID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Nack records a failure. Retryable tasks go back to pending with a
// backed-off scheduled_for; exhausted ones are failed for good.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task for nack: %w", err)
	}

	status := domain.TaskStatusFailed
	runAt := time.Now()
	if task.CanRetry() {
		status = domain.TaskStatusPending
		runAt = runAt.Add(retryBackoff(task.Attempts))
	}

	_, err = q.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, error = $2, scheduled_for = $3, updated_at = NOW()
		WHERE id = $4`,
		status, reason, runAt, taskID,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	return nil
}

// retryBackoff doubles per attempt and tops out at five minutes.
func retryBackoff(attempts int) time.Duration {
	d := time.Second << uint(attempts)
	if d <= 0 || d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

// GetTask loads a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if filter.DocumentID != "" {
		add("document_id = $%d", filter.DocumentID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// CancelTask fails a task that has not started yet. Tasks already claimed
// by a worker cannot be cancelled here.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	var id string
	err := q.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $1, error = 'cancelled', updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING id`,
		domain.TaskStatusFailed, taskID, domain.TaskStatusPending,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %s is not pending", taskID)
	}
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

// PurgeTasks deletes completed/failed tasks whose last update is older
// than the given age in seconds. Returns how many rows went away.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	result, err := q.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND updated_at < $3`,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge row count: %w", err)
	}
	return int(rows), nil
}

// Stats counts tasks per status and the age of the oldest pending one, in
// a single aggregate pass.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COALESCE(EXTRACT(EPOCH FROM (NOW() - MIN(created_at) FILTER (WHERE status = $1)))::bigint, 0)
		FROM tasks`,
		domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TaskStatusCompleted, domain.TaskStatusFailed,
	).Scan(
		&stats.PendingCount,
		&stats.ProcessingCount,
		&stats.CompletedCount,
		&stats.FailedCount,
		&stats.OldestPendingAge,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Ping checks database connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (q *Queue) Close() error {
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*domain.Task, error) {
	var (
		task                   domain.Task
		payload                []byte
		startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(
		&task.ID,
		&task.Type,
		&task.DocumentID,
		&payload,
		&task.Status,
		&task.Priority,
		&task.Attempts,
		&task.MaxAttempts,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&completedAt,
		&task.ScheduledFor,
	); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}
