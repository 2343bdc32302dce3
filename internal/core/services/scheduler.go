package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

const (
	schedulerLockKey = "scheduler"

	defaultPollInterval = 30 * time.Second
	defaultLockTTL      = 2 * defaultPollInterval
)

// Scheduler periodically enqueues maintenance tasks (job purging, stale
// job reaping) from persisted schedules. It runs on worker nodes; with a
// DistributedLock configured, only one instance dispatches per cycle.
type Scheduler struct {
	store  driven.SchedulerStore
	queue  driven.TaskQueue
	lock   driven.DistributedLock
	logger *slog.Logger

	interval     time.Duration
	lockTTL      time.Duration
	lockRequired bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerConfig holds scheduler dependencies and tuning.
type SchedulerConfig struct {
	Store     driven.SchedulerStore
	TaskQueue driven.TaskQueue
	Lock      driven.DistributedLock // optional, coordinates multiple workers
	Logger    *slog.Logger

	PollInterval time.Duration // due-schedule check interval, default 30s
	LockTTL      time.Duration // lock lifetime, default 2x poll interval
	LockRequired bool          // skip the cycle when the lock cannot be acquired
}

// NewScheduler builds a scheduler; zero config values fall back to
// defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}

	return &Scheduler{
		store:  cfg.Store,
		queue:  cfg.TaskQueue,
		lock:   cfg.Lock,
		logger: cfg.Logger,

		interval: cfg.PollInterval,
		lockTTL:  cfg.LockTTL,
		// Duplicate maintenance is worse than late maintenance, so a
		// configured lock is treated as required.
		lockRequired: cfg.LockRequired || cfg.Lock != nil,
	}
}

// EnsureDefaultSchedules seeds the built-in maintenance schedules if they
// do not exist yet. Existing rows are left untouched so operator tweaks
// survive restarts.
func (s *Scheduler) EnsureDefaultSchedules(ctx context.Context) error {
	for _, schedule := range domain.DefaultSchedules() {
		_, err := s.store.GetScheduledTask(ctx, schedule.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := s.store.SaveScheduledTask(ctx, schedule); err != nil {
			return err
		}
		s.logger.Info("seeded default schedule",
			"schedule_id", schedule.ID,
			"interval", schedule.Interval,
		)
	}
	return nil
}

// Start launches the scheduling loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting", "poll_interval", s.interval)
	go s.loop(runCtx)
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First cycle runs immediately so a restart does not delay overdue
	// maintenance by a full interval.
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle runs one scheduling pass, holding the distributed lock for its
// duration when one is configured.
func (s *Scheduler) runCycle(ctx context.Context) {
	if s.lock == nil {
		s.dispatchDue(ctx)
		return
	}

	acquired, err := s.lock.Acquire(ctx, schedulerLockKey, s.lockTTL)
	switch {
	case err != nil:
		s.logger.Warn("scheduler lock acquire failed", "error", err)
		if s.lockRequired {
			return
		}
	case !acquired:
		s.logger.Debug("scheduler lock held elsewhere, skipping cycle")
		return
	default:
		defer func() {
			if err := s.lock.Release(ctx, schedulerLockKey); err != nil {
				s.logger.Warn("scheduler lock release failed", "error", err)
			}
		}()
	}

	s.dispatchDue(ctx)
}

// dispatchDue enqueues one maintenance task per due enabled schedule and
// rolls each schedule's next-run time forward. Enqueue failures are
// recorded on the schedule and retried next cycle.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("load due schedules", "error", err)
		return
	}

	for _, schedule := range due {
		if !schedule.Enabled || !schedule.IsDue() {
			continue
		}

		// Maintenance tasks are not scoped to a document.
		task := domain.NewTask(schedule.Type, "", nil)
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Error("enqueue maintenance task",
				"schedule_id", schedule.ID,
				"error", err,
			)
			_ = s.store.UpdateLastRun(ctx, schedule.ID, err.Error())
			continue
		}

		s.logger.Info("maintenance task enqueued",
			"schedule_id", schedule.ID,
			"task_id", task.ID,
			"task_type", task.Type,
		)

		if err := s.store.UpdateLastRun(ctx, schedule.ID, ""); err != nil {
			s.logger.Warn("update schedule last run",
				"schedule_id", schedule.ID,
				"error", err,
			)
		}
	}
}

// CreateScheduledTask persists a new schedule.
func (s *Scheduler) CreateScheduledTask(ctx context.Context, scheduled *domain.ScheduledTask) error {
	return s.store.SaveScheduledTask(ctx, scheduled)
}

// GetScheduledTask loads a schedule by ID.
func (s *Scheduler) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	return s.store.GetScheduledTask(ctx, id)
}

// ListScheduledTasks returns all schedules.
func (s *Scheduler) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks(ctx)
}

// UpdateScheduledTask persists changes to a schedule.
func (s *Scheduler) UpdateScheduledTask(ctx context.Context, scheduled *domain.ScheduledTask) error {
	return s.store.SaveScheduledTask(ctx, scheduled)
}

// DeleteScheduledTask removes a schedule.
func (s *Scheduler) DeleteScheduledTask(ctx context.Context, id string) error {
	return s.store.DeleteScheduledTask(ctx, id)
}

// EnableScheduledTask turns a schedule on.
func (s *Scheduler) EnableScheduledTask(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

// DisableScheduledTask turns a schedule off without deleting it.
func (s *Scheduler) DisableScheduledTask(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

func (s *Scheduler) setEnabled(ctx context.Context, id string, enabled bool) error {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return err
	}
	scheduled.Enabled = enabled
	return s.store.SaveScheduledTask(ctx, scheduled)
}

// TriggerNow enqueues a schedule's task immediately, ignoring its timing.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*domain.Task, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task := domain.NewTask(scheduled.Type, "", nil)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("schedule triggered manually",
		"schedule_id", scheduled.ID,
		"task_id", task.ID,
	)
	return task, nil
}
