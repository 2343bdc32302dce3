package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

const (
	streamTasks   = "redline:tasks"
	groupWorkers  = "redline:workers"
	zsetScheduled = "redline:scheduled"
	prefixTask    = "redline:task:"

	// taskTTL bounds how long task records linger if purging never runs.
	taskTTL = 24 * time.Hour

	// reclaimIdle is how long a delivery may sit unacked before another
	// worker is allowed to steal it.
	reclaimIdle = 5 * time.Minute
)

var _ driven.TaskQueue = (*Queue)(nil)

// Queue is the Redis Streams task queue. Each task has a JSON record
// under its own key; the stream carries only a small envelope, and a
// consumer group tracks in-flight deliveries. Delayed tasks wait in a
// sorted set keyed by due time until a dequeue promotes them.
type Queue struct {
	client   *redis.Client
	consumer string
}

// NewQueue registers the consumer group (creating the stream if needed)
// and returns a queue bound to the given consumer name. The name must be
// unique per worker process; when empty a timestamped one is generated.
func NewQueue(client *redis.Client, consumer string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if consumer == "" {
		consumer = fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}

	err := client.XGroupCreateMkStream(context.Background(), streamTasks, groupWorkers, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Queue{client: client, consumer: consumer}, nil
}

func taskKey(taskID string) string { return prefixTask + taskID }

// claimKey holds the stream message ID while a task is in flight, so
// Ack and Nack can settle the delivery later.
func claimKey(taskID string) string { return prefixTask + taskID + ":msg" }

// writeTask stores the task record. Works on the client or a pipeline.
func writeTask(ctx context.Context, c redis.Cmdable, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	c.Set(ctx, taskKey(task.ID), data, taskTTL)
	return nil
}

// publish appends the task envelope to the stream.
func publish(ctx context.Context, c redis.Cmdable, task *domain.Task) {
	c.XAdd(ctx, &redis.XAddArgs{
		Stream: streamTasks,
		Values: map[string]interface{}{
			"task_id":     task.ID,
			"type":        string(task.Type),
			"document_id": task.DocumentID,
			"priority":    task.Priority,
		},
	})
}

// park holds a task in the scheduled set until its due time.
func park(ctx context.Context, c redis.Cmdable, task *domain.Task) {
	c.ZAdd(ctx, zsetScheduled, redis.Z{
		Score:  float64(task.ScheduledFor.Unix()),
		Member: task.ID,
	})
}

// Enqueue adds one task to the queue.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds tasks in a single pipeline. Tasks due later than now
// go to the scheduled set instead of straight onto the stream.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	now := time.Now()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := writeTask(ctx, pipe, task); err != nil {
			return err
		}
		if task.ScheduledFor.After(now) {
			park(ctx, pipe, task)
		} else {
			publish(ctx, pipe, task)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue tasks: %w", err)
	}
	return nil
}

// Dequeue blocks until a task arrives or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout waits up to timeout seconds for work; zero blocks
// indefinitely. Due scheduled tasks are promoted and stale deliveries
// reclaimed before reading new stream entries.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// Best effort; a failed promotion only delays the task.
	_ = q.promoteDue(ctx)

	if task, _ := q.reclaimStale(ctx); task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupWorkers,
		Consumer: q.consumer,
		Streams:  []string{streamTasks, ">"},
		Count:    1,
		Block:    time.Duration(timeout) * time.Second,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read task stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.accept(ctx, streams[0].Messages[0])
}

// accept resolves a stream message to its task record and marks the task
// in flight. Messages without a usable record are dropped.
func (q *Queue) accept(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	if taskID == "" {
		q.discard(ctx, msg.ID)
		return nil, nil
	}

	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	if task == nil {
		q.discard(ctx, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	if err := writeTask(ctx, q.client, task); err != nil {
		return nil, err
	}
	q.client.Set(ctx, claimKey(task.ID), msg.ID, taskTTL)

	return task, nil
}

// discard acks and deletes a message that cannot be processed.
func (q *Queue) discard(ctx context.Context, msgID string) {
	q.client.XAck(ctx, streamTasks, groupWorkers, msgID)
	q.client.XDel(ctx, streamTasks, msgID)
}

// settle removes the in-flight delivery for a task from the stream.
func settle(ctx context.Context, pipe redis.Pipeliner, msgID string) {
	if msgID == "" {
		return
	}
	pipe.XAck(ctx, streamTasks, groupWorkers, msgID)
	pipe.XDel(ctx, streamTasks, msgID)
}

// Ack marks a task completed. The record is kept (with TTL) so status
// queries still see it until purging runs.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	msgID, err := q.client.Get(ctx, claimKey(taskID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("resolve delivery for %s: %w", taskID, err)
	}

	pipe := q.client.Pipeline()
	settle(ctx, pipe, msgID)

	if task, err := q.GetTask(ctx, taskID); err == nil && task != nil {
		task.MarkCompleted()
		if err := writeTask(ctx, pipe, task); err != nil {
			return err
		}
	}
	pipe.Del(ctx, claimKey(taskID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task %s: %w", taskID, err)
	}
	return nil
}

// Nack hands a failed task back. While attempts remain the task is
// parked with its retry delay; otherwise it is recorded as failed.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("resolve task %s: %w", taskID, err)
	}
	if task == nil {
		return fmt.Errorf("nack: no record for task %s", taskID)
	}

	msgID, _ := q.client.Get(ctx, claimKey(taskID)).Result()

	pipe := q.client.Pipeline()
	settle(ctx, pipe, msgID)

	if task.CanRetry() {
		task.Retry(reason)
		park(ctx, pipe, task)
	} else {
		task.MarkFailed(reason)
	}
	if err := writeTask(ctx, pipe, task); err != nil {
		return err
	}
	pipe.Del(ctx, claimKey(taskID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack task %s: %w", taskID, err)
	}
	return nil
}

// GetTask loads a task record; missing records return nil, nil.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// forEachTask walks every stored task record; the callback returns false
// to stop early. This scans the keyspace, so it backs the management
// surface (list, purge, stats), never the dequeue path.
func (q *Queue) forEachTask(ctx context.Context, fn func(*domain.Task) bool) error {
	iter := q.client.Scan(ctx, 0, prefixTask+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":msg") {
			continue
		}

		data, err := q.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}
		if !fn(&task) {
			return nil
		}
	}
	return iter.Err()
}

// ListTasks filters stored task records. Unlike the Postgres queue this
// walks the keyspace, so results carry no ordering guarantee.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := q.forEachTask(ctx, func(task *domain.Task) bool {
		if filter.DocumentID != "" && task.DocumentID != filter.DocumentID {
			return true
		}
		if filter.Status != "" && task.Status != filter.Status {
			return true
		}
		if filter.Type != "" && task.Type != filter.Type {
			return true
		}
		tasks = append(tasks, task)
		return filter.Limit <= 0 || len(tasks) < filter.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(tasks) {
			return []*domain.Task{}, nil
		}
		tasks = tasks[filter.Offset:]
	}
	return tasks, nil
}

// CancelTask withdraws a task that has not been picked up yet.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("cancel: no record for task %s", taskID)
	}
	switch task.Status {
	case domain.TaskStatusProcessing:
		return fmt.Errorf("task %s is already processing", taskID)
	case domain.TaskStatusCompleted, domain.TaskStatusFailed:
		return fmt.Errorf("task %s is already settled", taskID)
	}

	task.MarkFailed("cancelled")

	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, zsetScheduled, task.ID)
	if err := writeTask(ctx, pipe, task); err != nil {
		return err
	}
	_, err = pipe.Exec(ctx)
	return err
}

// PurgeTasks drops finished task records older than the given age in
// seconds and reports how many were removed.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	purged := 0
	err := q.forEachTask(ctx, func(task *domain.Task) bool {
		finished := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if finished && task.UpdatedAt.Before(cutoff) {
			q.client.Del(ctx, taskKey(task.ID))
			purged++
		}
		return true
	})
	if err != nil {
		return purged, fmt.Errorf("scan tasks: %w", err)
	}
	return purged, nil
}

// Stats aggregates queue depth. Stream length plus the scheduled set
// make up pending; the consumer group's pending entries list is the
// in-flight count. Finished counts come from a keyspace walk and are
// best effort.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	info, err := q.client.XInfoStream(ctx, streamTasks).Result()
	switch {
	case err == nil:
		stats.PendingCount = int64(info.Length)
		if info.FirstEntry.ID != "" {
			stats.OldestPendingAge = streamEntryAge(info.FirstEntry.ID)
		}
	case errors.Is(err, redis.Nil) || isMissingStreamError(err):
		// Nothing enqueued yet
	default:
		return nil, fmt.Errorf("inspect stream: %w", err)
	}

	scheduled, err := q.client.ZCard(ctx, zsetScheduled).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("count scheduled tasks: %w", err)
	}
	stats.PendingCount += scheduled

	if groups, err := q.client.XInfoGroups(ctx, streamTasks).Result(); err == nil {
		for _, group := range groups {
			if group.Name == groupWorkers {
				stats.ProcessingCount = int64(group.Pending)
				break
			}
		}
	}

	_ = q.forEachTask(ctx, func(task *domain.Task) bool {
		switch task.Status {
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
		return true
	})

	return stats, nil
}

// Ping checks Redis connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared and owned by the caller.
func (q *Queue) Close() error {
	return nil
}

// promoteDue moves scheduled tasks whose time has come onto the stream.
func (q *Queue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, zsetScheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.Pipeline()
	for _, taskID := range due {
		task, err := q.GetTask(ctx, taskID)
		if err == nil && task != nil {
			publish(ctx, pipe, task)
		}
		// Entries without a record are dropped either way
		pipe.ZRem(ctx, zsetScheduled, taskID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// reclaimStale steals deliveries another worker left unacked past the
// idle threshold, so a crashed worker does not strand its tasks.
func (q *Queue) reclaimStale(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamTasks,
		Group:  groupWorkers,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   reclaimIdle,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, entry := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   streamTasks,
			Group:    groupWorkers,
			Consumer: q.consumer,
			MinIdle:  reclaimIdle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		task, err := q.accept(ctx, claimed[0])
		if err == nil && task != nil {
			return task, nil
		}
	}
	return nil, nil
}

// streamEntryAge derives an age in seconds from a stream entry ID, whose
// leading component is a millisecond timestamp.
func streamEntryAge(entryID string) int64 {
	msPart, _, _ := strings.Cut(entryID, "-")
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}
	age := time.Since(time.UnixMilli(ms))
	if age < 0 {
		return 0
	}
	return int64(age.Seconds())
}

func isMissingStreamError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such key") ||
		strings.Contains(msg, "requires the key to exist")
}
