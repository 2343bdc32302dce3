package domain

import "time"

// JobStatus represents the current state of an edit job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusGenerating JobStatus = "generating"
	JobStatusPatchReady JobStatus = "patch_ready"
	JobStatusApplying   JobStatus = "applying"
	JobStatusApplied    JobStatus = "applied"
	JobStatusRejected   JobStatus = "rejected"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusApplied, JobStatusRejected, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusGenerating, JobStatusPatchReady,
		JobStatusApplying, JobStatusApplied, JobStatusRejected, JobStatusFailed:
		return true
	default:
		return false
	}
}

// jobTransitions is the edge set of the job state machine.
// rejected is reachable only from patch_ready, and only by explicit
// caller action. failed is reachable from every non-terminal state
// (cancellation while queued counts as a failure with its own code).
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusGenerating, JobStatusFailed},
	JobStatusGenerating: {JobStatusPatchReady, JobStatusFailed},
	JobStatusPatchReady: {JobStatusApplying, JobStatusRejected},
	JobStatusApplying:   {JobStatusApplied, JobStatusFailed},
}

// ValidTransition reports whether the state machine permits from → to.
func ValidTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobFailure is the stable, machine-readable record of why a job
// terminally failed.
type JobFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuditEntry is one append-only note on a job's trail. Terminal jobs
// are immutable except for audit appends.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// EditJob tracks one edit instruction from submission to terminal
// outcome. State is transitioned only by the orchestrator; stores
// persist transitions with compare-and-swap so racing writers cannot
// double-apply.
type EditJob struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`

	// Instruction is the natural-language edit request.
	Instruction string `json:"instruction"`

	Status JobStatus `json:"status"`

	// BaseVersion is the document version captured at submission.
	// The patch is built against this version's snapshot.
	BaseVersion int `json:"base_version"`

	// Patch is nil until the job reaches patch_ready.
	Patch *Patch `json:"patch,omitempty"`

	// ResultVersion is the version the apply produced (0 until applied).
	ResultVersion int `json:"result_version,omitempty"`

	// Failure is set when the job terminates in failed.
	Failure *JobFailure `json:"failure,omitempty"`

	// Audit is the append-only trail of notable events.
	Audit []AuditEntry `json:"audit,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	GeneratingAt *time.Time `json:"generating_at,omitempty"`
	ReadyAt      *time.Time `json:"ready_at,omitempty"`
	ApplyingAt   *time.Time `json:"applying_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewEditJob creates a queued job against the given base version.
func NewEditJob(documentID, instruction string, baseVersion int) *EditJob {
	return &EditJob{
		ID:          GenerateID(),
		DocumentID:  documentID,
		Instruction: instruction,
		Status:      JobStatusQueued,
		BaseVersion: baseVersion,
		CreatedAt:   time.Now(),
	}
}

// AddAudit appends an event to the job's audit trail.
func (j *EditJob) AddAudit(event, detail string) {
	j.Audit = append(j.Audit, AuditEntry{At: time.Now(), Event: event, Detail: detail})
}

// MarkGenerating records entry into the generating state.
func (j *EditJob) MarkGenerating() {
	now := time.Now()
	j.Status = JobStatusGenerating
	j.GeneratingAt = &now
}

// MarkPatchReady records the built patch and entry into patch_ready.
func (j *EditJob) MarkPatchReady(patch *Patch) {
	now := time.Now()
	j.Status = JobStatusPatchReady
	j.Patch = patch
	j.ReadyAt = &now
}

// MarkApplying records entry into the applying state.
func (j *EditJob) MarkApplying() {
	now := time.Now()
	j.Status = JobStatusApplying
	j.ApplyingAt = &now
}

// MarkApplied records the produced version and terminal success.
func (j *EditJob) MarkApplied(resultVersion int) {
	now := time.Now()
	j.Status = JobStatusApplied
	j.ResultVersion = resultVersion
	j.FinishedAt = &now
}

// MarkRejected records terminal rejection. The document is untouched.
func (j *EditJob) MarkRejected() {
	now := time.Now()
	j.Status = JobStatusRejected
	j.FinishedAt = &now
}

// MarkFailed records terminal failure with its stable code.
func (j *EditJob) MarkFailed(code, message string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Failure = &JobFailure{Code: code, Message: message}
	j.FinishedAt = &now
}

// JobFilter narrows job listings.
type JobFilter struct {
	DocumentID string
	Status     JobStatus
	Limit      int
	Offset     int
}
