package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/services"
)

// Orchestrator is the slice of the job orchestrator the worker drives.
type Orchestrator interface {
	// ProcessGenerateTask runs one edit job's generating phase
	ProcessGenerateTask(ctx context.Context, jobID string) error

	// PurgeOldJobs deletes terminal jobs past the retention window
	PurgeOldJobs(ctx context.Context) (int, error)

	// ReapStaleJobs fails jobs stuck in a non-terminal state
	ReapStaleJobs(ctx context.Context) (int, error)
}

var _ Orchestrator = (*services.JobOrchestrator)(nil)

// Worker consumes the task queue with a pool of goroutines. Edit tasks
// run the orchestrator's generating phase; maintenance tasks run the
// periodic sweeps. The embedded scheduler, when present, shares the
// worker's lifecycle.
type Worker struct {
	queue        driven.TaskQueue
	orchestrator Orchestrator
	scheduler    *services.Scheduler
	logger       *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds
	errorBackoff   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerConfig holds worker dependencies and tuning.
type WorkerConfig struct {
	TaskQueue    driven.TaskQueue
	Orchestrator Orchestrator
	Scheduler    *services.Scheduler // optional, started and stopped with the worker
	Logger       *slog.Logger

	Concurrency    int // number of consumer goroutines, default 1
	DequeueTimeout int // seconds each dequeue waits for work, default 5
}

// NewWorker builds a worker; zero config values fall back to defaults.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5
	}

	return &Worker{
		queue:        cfg.TaskQueue,
		orchestrator: cfg.Orchestrator,
		scheduler:    cfg.Scheduler,
		logger:       cfg.Logger,

		concurrency:    cfg.Concurrency,
		dequeueTimeout: cfg.DequeueTimeout,
		// Pause after a dequeue failure so a broken queue does not spin
		// the CPU.
		errorBackoff: time.Second,
	}
}

// Start launches the consumer pool and the scheduler. Calling Start on a
// running worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("worker starting", "concurrency", w.concurrency, "dequeue_timeout", w.dequeueTimeout)

	if w.scheduler != nil {
		if err := w.scheduler.Start(runCtx); err != nil {
			w.logger.Error("scheduler start failed", "error", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(w.concurrency)
	for i := range w.concurrency {
		go func() {
			defer wg.Done()
			w.runConsumer(runCtx, i)
		}()
	}
	go func() {
		wg.Wait()
		close(w.done)
	}()

	return nil
}

// Stop halts the pool and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	cancel()
	<-done

	w.logger.Info("worker stopped")
}

// Wait blocks until every consumer goroutine has exited.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// runConsumer is one consumer goroutine: dequeue, process, repeat until
// the context ends.
func (w *Worker) runConsumer(ctx context.Context, id int) {
	logger := w.logger.With("consumer", id)
	logger.Info("consumer started")
	defer logger.Info("consumer stopped")

	for ctx.Err() == nil {
		task, err := w.queue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorBackoff):
			}
			continue
		}
		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and settles it with the queue: ack on
// success, nack for retry on failure.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "document_id", task.DocumentID)
	logger.Info("task started")

	start := time.Now()
	err := w.handle(ctx, task, logger)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("task failed", "duration", elapsed, "error", err)
		if nackErr := w.queue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("nack failed", "error", nackErr)
		}
		return
	}

	logger.Info("task done", "duration", elapsed)
	if ackErr := w.queue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("ack failed", "error", ackErr)
	}
}

// handle dispatches a task to the orchestrator by type.
func (w *Worker) handle(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	switch task.Type {
	case domain.TaskTypeGeneratePatch:
		jobID := task.JobID()
		if jobID == "" {
			return errors.New("task payload has no job_id")
		}
		// Job-level failures land on the job row, not here: an error from
		// the orchestrator means infrastructure trouble and the task
		// should be retried.
		return w.orchestrator.ProcessGenerateTask(ctx, jobID)

	case domain.TaskTypePurgeJobs:
		purged, err := w.orchestrator.PurgeOldJobs(ctx)
		if err == nil && purged > 0 {
			logger.Info("purged old jobs", "count", purged)
		}
		return err

	case domain.TaskTypeReapStaleJobs:
		reaped, err := w.orchestrator.ReapStaleJobs(ctx)
		if err == nil && reaped > 0 {
			logger.Warn("reaped stale jobs", "count", reaped)
		}
		return err

	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// Health is the worker's health snapshot.
type Health struct {
	Running     bool
	QueueHealth bool
	Error       string
}

// Health reports whether the pool is running and the queue reachable.
func (w *Worker) Health(ctx context.Context) Health {
	h := Health{Running: w.isRunning(), QueueHealth: true}
	if err := w.queue.Ping(ctx); err != nil {
		h.QueueHealth = false
		h.Error = err.Error()
	}
	return h
}
