package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
	"github.com/custodia-labs/redline-core/internal/runtime"
)

const (
	// maxInstructionLen bounds submitted edit instructions (bytes).
	maxInstructionLen = 10000

	// applyLockTTL caps how long a crashed apply can hold a document.
	applyLockTTL = 30 * time.Second

	// applyLockWait bounds how long Apply waits for a contended document
	// before giving up and failing the job.
	applyLockWait       = 5 * time.Second
	applyLockRetryDelay = 50 * time.Millisecond

	// renderCacheTTL expires cached previews. Entries are also dropped
	// explicitly when the job leaves patch_ready.
	renderCacheTTL = 10 * time.Minute

	// defaultStaleJobAge is how long a job may sit in one non-terminal
	// state before the reaper fails it.
	defaultStaleJobAge = 15 * time.Minute
)

// JobOrchestrator drives edit jobs through the state machine
// queued → generating → patch_ready → applying → {applied, rejected, failed}.
//
// Two rules keep concurrent access safe:
//  1. Every status change is persisted with a compare-and-set on the
//     previous status; a racing writer loses the swap and stops.
//  2. Version appends happen under the per-document distributed lock, so
//     concurrent applies serialize and version numbers stay gapless.
//
// The collaborator call never holds the document lock: generation works
// against the job's captured base version and the apply step re-validates
// against the head it actually appends to.
type JobOrchestrator struct {
	jobs        driven.JobStore
	documents   driven.DocumentStore
	versions    *VersionService
	queue       driven.TaskQueue
	lock        driven.DistributedLock
	renderCache driven.RenderCache
	settings    driven.SettingsStore
	registry    driven.SuggestionRegistry
	builder     *PatchBuilder
	validator   *PatchValidator
	renderer    *TrackedChangeRenderer
	services    *runtime.Services
	staleJobAge time.Duration
	logger      *slog.Logger

	// Tunable waits, shortened in tests.
	retryBase      time.Duration
	lockWait       time.Duration
	lockRetryDelay time.Duration
}

// JobOrchestratorConfig holds dependencies for JobOrchestrator.
type JobOrchestratorConfig struct {
	JobStore      driven.JobStore
	DocumentStore driven.DocumentStore
	Versions      *VersionService
	Queue         driven.TaskQueue
	Lock          driven.DistributedLock
	RenderCache   driven.RenderCache
	SettingsStore driven.SettingsStore
	Registry      driven.SuggestionRegistry
	Builder       *PatchBuilder
	Validator     *PatchValidator
	Renderer      *TrackedChangeRenderer
	Services      *runtime.Services

	// StaleJobAge overrides how long a job may sit in a non-terminal
	// state before ReapStaleJobs fails it (default 15m).
	StaleJobAge time.Duration

	Logger *slog.Logger
}

// NewJobOrchestrator creates a new job orchestrator.
func NewJobOrchestrator(cfg JobOrchestratorConfig) *JobOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	staleJobAge := cfg.StaleJobAge
	if staleJobAge <= 0 {
		staleJobAge = defaultStaleJobAge
	}

	return &JobOrchestrator{
		jobs:        cfg.JobStore,
		documents:   cfg.DocumentStore,
		versions:    cfg.Versions,
		queue:       cfg.Queue,
		lock:        cfg.Lock,
		renderCache: cfg.RenderCache,
		settings:    cfg.SettingsStore,
		registry:    cfg.Registry,
		builder:     cfg.Builder,
		validator:   cfg.Validator,
		renderer:    cfg.Renderer,
		services:    cfg.Services,
		staleJobAge: staleJobAge,
		logger:      logger,

		retryBase:      time.Second,
		lockWait:       applyLockWait,
		lockRetryDelay: applyLockRetryDelay,
	}
}

var _ driving.JobService = (*JobOrchestrator)(nil)

// Submit validates the request, creates a queued job and enqueues its
// generation task. The document's head at submission time becomes the
// job's base version unless the request pins an earlier one.
func (o *JobOrchestrator) Submit(ctx context.Context, req driving.SubmitEditRequest) (*domain.EditJob, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("%w: instruction is required", domain.ErrInvalidInput)
	}
	if len(instruction) > maxInstructionLen {
		return nil, fmt.Errorf("%w: instruction exceeds %d bytes", domain.ErrInvalidInput, maxInstructionLen)
	}

	doc, err := o.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	baseVersion := req.BaseVersion
	if baseVersion == 0 {
		baseVersion = doc.LatestVersion
	}
	if baseVersion < 1 || baseVersion > doc.LatestVersion {
		return nil, fmt.Errorf("%w: base version %d (document head is %d)",
			domain.ErrVersionNotFound, baseVersion, doc.LatestVersion)
	}

	job := domain.NewEditJob(doc.ID, instruction, baseVersion)
	job.AddAudit("submitted", fmt.Sprintf("base version %d", baseVersion))

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	task := domain.NewGeneratePatchTask(doc.ID, job.ID)
	if err := o.queue.Enqueue(ctx, task); err != nil {
		_ = o.failJob(ctx, job, domain.JobStatusQueued, &domain.StorageError{Op: "enqueue", Err: err})
		return nil, fmt.Errorf("failed to enqueue generation task: %w", err)
	}

	o.logger.Info("edit job submitted",
		"job_id", job.ID,
		"document_id", doc.ID,
		"base_version", baseVersion,
	)

	return job, nil
}

// Get retrieves a job by ID.
func (o *JobOrchestrator) Get(ctx context.Context, id string) (*domain.EditJob, error) {
	return o.jobs.Get(ctx, id)
}

// List retrieves jobs matching the filter, newest first.
func (o *JobOrchestrator) List(ctx context.Context, filter domain.JobFilter) ([]*domain.EditJob, error) {
	return o.jobs.List(ctx, filter)
}

// CountByStatus returns job counts grouped by status.
func (o *JobOrchestrator) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	return o.jobs.CountByStatus(ctx)
}

// Preview renders the pending patch of a patch_ready job against its base
// version. Renderings are cached per (job, format) until the job leaves
// patch_ready.
func (o *JobOrchestrator) Preview(ctx context.Context, jobID string, format driving.RenderFormat) (*driving.PatchPreview, error) {
	if format == "" {
		format = driving.RenderHTML
	}
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: unknown render format %q", domain.ErrInvalidInput, format)
	}

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobFinished, job.Status)
	}
	if job.Status != domain.JobStatusPatchReady || job.Patch == nil {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrPatchNotReady, job.Status)
	}

	rendered, err := o.renderedPatch(ctx, job, format)
	if err != nil {
		return nil, err
	}

	return &driving.PatchPreview{
		JobID:       job.ID,
		DocumentID:  job.DocumentID,
		BaseVersion: job.BaseVersion,
		Format:      format,
		Rendered:    rendered,
		Stats:       job.Patch.Stats(),
		Warnings:    job.Patch.Warnings,
	}, nil
}

// renderedPatch returns the cached rendering when present, rendering and
// caching on a miss.
func (o *JobOrchestrator) renderedPatch(ctx context.Context, job *domain.EditJob, format driving.RenderFormat) (string, error) {
	if o.renderCache != nil {
		if rendered, err := o.renderCache.Get(ctx, job.ID, string(format)); err == nil {
			return rendered, nil
		}
	}

	_, snapshot, err := o.versions.Snapshot(ctx, job.DocumentID, job.BaseVersion)
	if err != nil {
		return "", err
	}

	rendered, err := o.renderer.Render(snapshot, job.Patch, format)
	if err != nil {
		return "", err
	}

	if o.renderCache != nil {
		if err := o.renderCache.Set(ctx, job.ID, string(format), rendered, renderCacheTTL); err != nil {
			o.logger.Warn("failed to cache rendering", "job_id", job.ID, "format", format, "error", err)
		}
	}

	return rendered, nil
}

// Apply commits a patch_ready job's patch to the document:
//  1. CAS patch_ready → applying (a racing Apply loses here).
//  2. Acquire the per-document lock.
//  3. Re-validate the patch against the current head.
//  4. Apply the operations and append the result as head+1.
//  5. CAS applying → applied with the produced version number.
//
// A validation failure against a moved head terminates the job in failed
// with a version_mismatch code; the document's history is untouched.
func (o *JobOrchestrator) Apply(ctx context.Context, jobID string) (*driving.ApplyResult, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch {
	case job.Status.Terminal():
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobFinished, job.Status)
	case job.Status == domain.JobStatusApplying:
		return nil, fmt.Errorf("%w: apply already in progress", domain.ErrInvalidTransition)
	case job.Status != domain.JobStatusPatchReady || job.Patch == nil:
		return nil, fmt.Errorf("%w: job is %s", domain.ErrPatchNotReady, job.Status)
	}

	// Step 1: claim the apply before touching the document. Losing this
	// swap means another caller got there first.
	job.MarkApplying()
	if err := o.jobs.Update(ctx, job, domain.JobStatusPatchReady); err != nil {
		return nil, err
	}

	// Step 2: serialize on the document.
	lockName := driven.DocumentLockName(job.DocumentID)
	if err := o.acquireDocumentLock(ctx, lockName); err != nil {
		return nil, o.failJob(ctx, job, domain.JobStatusApplying, err)
	}
	defer func() {
		if err := o.lock.Release(ctx, lockName); err != nil {
			o.logger.Warn("failed to release document lock", "lock", lockName, "error", err)
		}
	}()

	// Step 3: re-validate against the head the append will build on.
	head, headSnapshot, err := o.versions.Head(ctx, job.DocumentID)
	if err != nil {
		return nil, o.failJob(ctx, job, domain.JobStatusApplying, err)
	}
	if err := o.validator.Validate(job.Patch, head.Number, headSnapshot); err != nil {
		return nil, o.failJob(ctx, job, domain.JobStatusApplying, err)
	}

	// Step 4: apply and append.
	result, err := job.Patch.Apply(headSnapshot.Content())
	if err != nil {
		return nil, o.failJob(ctx, job, domain.JobStatusApplying, err)
	}

	description := "AI edit: " + clip(job.Instruction, 100)
	version, err := o.versions.Append(ctx, job.DocumentID, head.Number+1,
		domain.NewSnapshot(result), job.Patch, job.ID, description)
	if err != nil {
		return nil, o.failJob(ctx, job, domain.JobStatusApplying, err)
	}

	// Step 5: record the outcome. The version is already committed; losing
	// this swap leaves a correct document with an inconsistent job row, so
	// it is logged at error level rather than silently dropped.
	job.MarkApplied(version.Number)
	job.AddAudit("applied", fmt.Sprintf("version %d", version.Number))
	if err := o.jobs.Update(ctx, job, domain.JobStatusApplying); err != nil {
		o.logger.Error("version appended but job row not updated",
			"job_id", job.ID,
			"document_id", job.DocumentID,
			"result_version", version.Number,
			"error", err,
		)
		return nil, err
	}

	if o.renderCache != nil {
		_ = o.renderCache.DeleteByJob(ctx, job.ID)
	}

	o.logger.Info("patch applied",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"result_version", version.Number,
	)

	return &driving.ApplyResult{
		JobID:         job.ID,
		DocumentID:    job.DocumentID,
		ResultVersion: version.Number,
		Checksum:      version.Checksum,
	}, nil
}

// acquireDocumentLock polls for the per-document lock until the lock wait
// elapses. Contention past that window means another apply is wedged, so
// the caller fails the job instead of queueing behind it.
func (o *JobOrchestrator) acquireDocumentLock(ctx context.Context, name string) error {
	deadline := time.Now().Add(o.lockWait)
	for {
		acquired, err := o.lock.Acquire(ctx, name, applyLockTTL)
		if err != nil {
			return &domain.StorageError{Op: "lock", Err: err}
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return &domain.StorageError{Op: "lock", Err: fmt.Errorf("document lock %s not acquired within %s", name, o.lockWait)}
		}
		select {
		case <-ctx.Done():
			return &domain.StorageError{Op: "lock", Err: ctx.Err()}
		case <-time.After(o.lockRetryDelay):
		}
	}
}

// Reject discards a patch_ready job's patch. The document is untouched.
func (o *JobOrchestrator) Reject(ctx context.Context, jobID string, reason string) (*domain.EditJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobFinished, job.Status)
	}
	if job.Status != domain.JobStatusPatchReady {
		return nil, fmt.Errorf("%w: cannot reject a %s job", domain.ErrInvalidTransition, job.Status)
	}

	job.MarkRejected()
	if reason == "" {
		reason = "rejected by caller"
	}
	job.AddAudit("rejected", reason)

	if err := o.jobs.Update(ctx, job, domain.JobStatusPatchReady); err != nil {
		return nil, err
	}

	if o.renderCache != nil {
		_ = o.renderCache.DeleteByJob(ctx, job.ID)
	}

	o.logger.Info("job rejected", "job_id", job.ID, "document_id", job.DocumentID)
	return job, nil
}

// Cancel aborts a job that has not produced a patch yet. Queued and
// generating jobs land in failed with a cancelled code; the generator's
// own CAS notices the cancel and drops its work.
func (o *JobOrchestrator) Cancel(ctx context.Context, jobID string) (*domain.EditJob, error) {
	for attempt := 0; ; attempt++ {
		job, err := o.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if job.Status.Terminal() {
			return nil, fmt.Errorf("%w: job is %s", domain.ErrJobFinished, job.Status)
		}
		if job.Status != domain.JobStatusQueued && job.Status != domain.JobStatusGenerating {
			return nil, fmt.Errorf("%w: cannot cancel a %s job", domain.ErrInvalidTransition, job.Status)
		}

		expected := job.Status
		job.MarkFailed(domain.FailureCodeCancelled, "cancelled by caller")
		job.AddAudit("cancelled", "")

		err = o.jobs.Update(ctx, job, expected)
		if err == nil {
			if expected == domain.JobStatusQueued {
				o.cancelGenerateTask(ctx, job)
			}
			o.logger.Info("job cancelled", "job_id", job.ID, "was", expected)
			return job, nil
		}
		// The generator may have moved the job between the read and the
		// swap (queued → generating). Re-read once and try again from the
		// new state.
		if !errors.Is(err, domain.ErrInvalidTransition) || attempt > 0 {
			return nil, err
		}
	}
}

// cancelGenerateTask best-effort drops the pending generation task of a
// cancelled job. The generator's status check makes this an optimization,
// not a correctness requirement.
func (o *JobOrchestrator) cancelGenerateTask(ctx context.Context, job *domain.EditJob) {
	tasks, err := o.queue.ListTasks(ctx, driven.TaskFilter{
		DocumentID: job.DocumentID,
		Type:       domain.TaskTypeGeneratePatch,
		Status:     domain.TaskStatusPending,
	})
	if err != nil {
		o.logger.Warn("could not list tasks for cancelled job", "job_id", job.ID, "error", err)
		return
	}
	for _, task := range tasks {
		if task.JobID() != job.ID {
			continue
		}
		if err := o.queue.CancelTask(ctx, task.ID); err != nil {
			o.logger.Warn("could not cancel generation task", "task_id", task.ID, "job_id", job.ID, "error", err)
		}
		return
	}
}

// ProcessGenerateTask runs the generating phase of one job: call the
// collaborator, decode its suggestions, build the patch and validate it
// against the job's base snapshot.
//
// The method is idempotent over task redelivery: a job that already left
// queued is skipped, and every failure lands the job in a terminal state
// rather than bubbling back to the queue (returning an error here would
// retry work the state machine would refuse anyway).
func (o *JobOrchestrator) ProcessGenerateTask(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			o.logger.Warn("generate task for missing job", "job_id", jobID)
			return nil
		}
		return err
	}

	if job.Status != domain.JobStatusQueued {
		o.logger.Info("skipping generate task, job already moved",
			"job_id", jobID, "status", job.Status)
		return nil
	}

	job.MarkGenerating()
	if err := o.jobs.Update(ctx, job, domain.JobStatusQueued); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Cancelled between the read and the swap.
			return nil
		}
		return err
	}

	// Load the base snapshot the patch will be built against.
	_, baseSnapshot, err := o.versions.Snapshot(ctx, job.DocumentID, job.BaseVersion)
	if err != nil {
		return o.terminalGenerateFailure(ctx, job, err)
	}

	settings, err := o.settings.GetSettings(ctx)
	if err != nil {
		o.logger.Warn("falling back to default settings", "error", err)
		settings = domain.DefaultEngineSettings()
	}

	var collaborator driven.ModelCollaborator
	if o.services != nil {
		collaborator = o.services.Collaborator()
	}
	if collaborator == nil {
		return o.terminalGenerateFailure(ctx, job, &domain.CollaboratorError{
			Kind:   domain.CollaboratorUnavailable,
			Detail: "no collaborator configured",
		})
	}

	raw, attempts, err := o.propose(ctx, collaborator, baseSnapshot.Content(), job.Instruction, &settings.Collaborator)
	if err != nil {
		return o.terminalGenerateFailure(ctx, job, err)
	}
	job.AddAudit("collaborator_responded", fmt.Sprintf("%d byte response after %d attempt(s)", len(raw), attempts))

	hints, decoderName, ok, err := o.registry.Decode(raw)
	if !ok {
		return o.terminalGenerateFailure(ctx, job, domain.NewBuildError(domain.BuildMalformedSuggestion,
			"collaborator output not recognized by any decoder"))
	}
	if err != nil {
		return o.terminalGenerateFailure(ctx, job, err)
	}
	job.AddAudit("suggestions_decoded", fmt.Sprintf("%d hint(s) via %s", len(hints), decoderName))

	patch, err := o.builder.Build(baseSnapshot, hints, BuildOptions{
		BaseVersion: job.BaseVersion,
		Granularity: settings.DiffGranularity,
		StrictMatch: settings.StrictMatch,
		Author:      settings.EditAuthor,
	})
	if err != nil {
		return o.terminalGenerateFailure(ctx, job, err)
	}

	if err := o.validator.Validate(patch, job.BaseVersion, baseSnapshot); err != nil {
		return o.terminalGenerateFailure(ctx, job, err)
	}

	job.MarkPatchReady(patch)
	for _, warning := range patch.Warnings {
		job.AddAudit("warning", warning)
	}
	stats := patch.Stats()
	job.AddAudit("patch_ready", fmt.Sprintf("%d insertion(s), %d deletion(s)", stats.Insertions, stats.Deletions))

	if err := o.jobs.Update(ctx, job, domain.JobStatusGenerating); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Cancelled while generating; the patch is dropped.
			o.logger.Info("job moved while generating, dropping patch", "job_id", job.ID)
			return nil
		}
		return err
	}

	o.logger.Info("patch ready",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"base_version", job.BaseVersion,
		"insertions", stats.Insertions,
		"deletions", stats.Deletions,
	)

	return nil
}

// terminalGenerateFailure fails the job from generating and consumes the
// task: the job reached a terminal state, so the queue must not retry it.
func (o *JobOrchestrator) terminalGenerateFailure(ctx context.Context, job *domain.EditJob, cause error) error {
	_ = o.failJob(ctx, job, domain.JobStatusGenerating, cause)
	return nil
}

// propose calls the collaborator with the configured timeout, retrying
// transient failures (timeout, rate limit, unavailable) with exponential
// backoff. Structural failures are returned immediately. The attempt
// count is reported for the audit trail.
func (o *JobOrchestrator) propose(ctx context.Context, collaborator driven.ModelCollaborator, content, instruction string, cfg *domain.CollaboratorSettings) (string, int, error) {
	maxAttempts := cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := o.retryBase << (attempt - 2)
			select {
			case <-ctx.Done():
				return "", attempt - 1, lastErr
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		raw, err := collaborator.Propose(callCtx, content, instruction)
		cancel()
		if err == nil {
			return raw, attempt, nil
		}

		lastErr = classifyCollaboratorErr(err, cfg.Timeout())

		var collabErr *domain.CollaboratorError
		if !errors.As(lastErr, &collabErr) || !collabErr.Transient() {
			return "", attempt, lastErr
		}

		o.logger.Warn("collaborator call failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"kind", collabErr.Kind,
			"error", err,
		)
	}

	return "", maxAttempts, lastErr
}

// classifyCollaboratorErr normalizes collaborator failures to
// CollaboratorError so retry policy and failure codes stay uniform.
// Unclassified errors count as unavailable (transient): retrying an
// unknown fault is safer than failing the job on a blip.
func classifyCollaboratorErr(err error, timeout time.Duration) error {
	var collabErr *domain.CollaboratorError
	if errors.As(err, &collabErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.CollaboratorError{
			Kind:   domain.CollaboratorTimeout,
			Detail: fmt.Sprintf("no response within %s", timeout),
			Err:    err,
		}
	}
	return &domain.CollaboratorError{
		Kind:   domain.CollaboratorUnavailable,
		Detail: err.Error(),
		Err:    err,
	}
}

// failJob terminally fails a job from the expected status, recording the
// stable failure code and invalidating cached renders. Returns cause so
// callers can hand the original error up.
func (o *JobOrchestrator) failJob(ctx context.Context, job *domain.EditJob, expected domain.JobStatus, cause error) error {
	code := domain.FailureCode(cause)
	job.MarkFailed(code, cause.Error())
	job.AddAudit("failed", cause.Error())

	if err := o.jobs.Update(ctx, job, expected); err != nil {
		o.logger.Error("failed to persist job failure",
			"job_id", job.ID,
			"expected_status", expected,
			"code", code,
			"error", err,
		)
	}

	o.logger.Warn("job failed",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"code", code,
		"error", cause,
	)

	if o.renderCache != nil {
		_ = o.renderCache.DeleteByJob(ctx, job.ID)
	}

	return cause
}

// PurgeOldJobs deletes terminal jobs older than the configured retention.
// A retention of zero disables purging.
func (o *JobOrchestrator) PurgeOldJobs(ctx context.Context) (int, error) {
	settings, err := o.settings.GetSettings(ctx)
	if err != nil {
		return 0, err
	}

	days := settings.JobRetentionDays
	if days <= 0 {
		return 0, nil
	}

	purged, err := o.jobs.PurgeTerminal(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		o.logger.Info("purged old jobs", "count", purged, "retention_days", days)
	}
	return purged, nil
}

// ReapStaleJobs fails jobs stuck in queued, generating or applying longer
// than the stale age, so no job sits non-terminal forever. patch_ready is
// not stale: it is waiting on a human decision.
func (o *JobOrchestrator) ReapStaleJobs(ctx context.Context) (int, error) {
	stale, err := o.jobs.ListStale(ctx, []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusGenerating,
		domain.JobStatusApplying,
	}, o.staleJobAge)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range stale {
		expected := job.Status
		job.MarkFailed(domain.FailureCodeTimeout, fmt.Sprintf("stuck in %s for more than %s", expected, o.staleJobAge))
		job.AddAudit("reaped", fmt.Sprintf("stale in %s", expected))

		if err := o.jobs.Update(ctx, job, expected); err != nil {
			// Moved on its own since the listing; not stale after all.
			continue
		}

		if o.renderCache != nil {
			_ = o.renderCache.DeleteByJob(ctx, job.ID)
		}

		o.logger.Warn("reaped stale job", "job_id", job.ID, "was", expected)
		reaped++
	}

	return reaped, nil
}
