package domain

import "time"

// TaskType names the kinds of background work the queue carries.
type TaskType string

const (
	// TaskTypeGeneratePatch runs the generating phase of one edit job.
	TaskTypeGeneratePatch TaskType = "generate_patch"
	// TaskTypePurgeJobs prunes terminal jobs past the retention window.
	TaskTypePurgeJobs TaskType = "purge_jobs"
	// TaskTypeReapStaleJobs fails jobs abandoned mid-flight.
	TaskTypeReapStaleJobs TaskType = "reap_stale_jobs"
)

// TaskStatus tracks a task through the queue.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// payloadJobID is the payload key linking a generate_patch task to its job.
const payloadJobID = "job_id"

// Task is one queued unit of background work. The queue owns this
// record's lifecycle; edit progress stays on the job row, so a lost or
// duplicated task never corrupts a job.
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	// DocumentID scopes document work; maintenance sweeps leave it empty.
	DocumentID string `json:"document_id,omitempty"`

	// Payload carries per-type arguments, e.g. {"job_id": ...} for
	// generate_patch. Maintenance types need none.
	Payload map[string]string `json:"payload"`

	Status TaskStatus `json:"status"`

	// Priority orders dequeue. Higher runs first, 0 is normal.
	Priority int `json:"priority"`

	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor hides the task from consumers until it passes.
	// Retry pushes it into the future for backoff.
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask builds a pending task dispatchable immediately. Callers that
// need a priority or a delay set those fields afterwards.
func NewTask(taskType TaskType, documentID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		DocumentID:   documentID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewGeneratePatchTask queues the generating phase of one job. Single
// attempt only: the job state machine guards generation, and a second
// queue-level attempt would find the job already out of queued. Retries
// of the model call happen inside the collaborator.
func NewGeneratePatchTask(documentID, jobID string) *Task {
	task := NewTask(TaskTypeGeneratePatch, documentID, map[string]string{payloadJobID: jobID})
	task.MaxAttempts = 1
	return task
}

// NewPurgeJobsTask queues one purge sweep.
func NewPurgeJobsTask() *Task {
	return NewTask(TaskTypePurgeJobs, "", nil)
}

// NewReapStaleJobsTask queues one reaper sweep.
func NewReapStaleJobsTask() *Task {
	return NewTask(TaskTypeReapStaleJobs, "", nil)
}

// JobID returns the job a generate_patch task belongs to, or "".
func (t *Task) JobID() string {
	return t.Payload[payloadJobID]
}

// CanRetry reports whether the queue may hand the task out again.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady reports whether the task is dispatchable right now.
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && time.Now().After(t.ScheduledFor)
}

// MarkProcessing records a dequeue: one more attempt, clock started.
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Attempts++
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
}

// MarkCompleted finishes the task and clears any error left over from
// earlier attempts.
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed terminates the task with its final error.
func (t *Task) MarkFailed(reason string) {
	t.Status = TaskStatusFailed
	t.Error = reason
	t.UpdatedAt = time.Now()
}

// maxRetryDelay caps the backoff between attempts.
const maxRetryDelay = 5 * time.Minute

// Retry re-queues the task with exponential backoff, doubling per
// recorded attempt up to maxRetryDelay. Callers check CanRetry first.
func (t *Task) Retry(reason string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.Error = reason
	t.UpdatedAt = now

	delay := time.Second << uint(t.Attempts)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	t.ScheduledFor = now.Add(delay)
}
