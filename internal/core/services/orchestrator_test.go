package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
	"github.com/custodia-labs/redline-core/internal/patchops"
	"github.com/custodia-labs/redline-core/internal/runtime"
	"github.com/custodia-labs/redline-core/internal/suggestions"
)

type orchestratorFixture struct {
	orchestrator *JobOrchestrator
	jobs         *mocks.MockJobStore
	documents    *mocks.MockDocumentStore
	versionRows  *mocks.MockVersionStore
	content      *mocks.MockContentStore
	versions     *VersionService
	queue        *mocks.MockTaskQueue
	lock         *mocks.MockDistributedLock
	cache        *mocks.MockRenderCache
	settings     *mocks.MockSettingsStore
	collaborator *mocks.MockCollaborator
}

func newTestOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()

	documents := mocks.NewMockDocumentStore()
	versionRows := mocks.NewMockVersionStore()
	versionRows.Docs = documents
	content := mocks.NewMockContentStore()
	jobs := mocks.NewMockJobStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	cache := mocks.NewMockRenderCache()
	settings := mocks.NewMockSettingsStore()
	collaborator := mocks.NewMockCollaborator("")

	services := runtime.NewServices(domain.NewRuntimeConfig("memory", "memory", "memory"))
	services.SetCollaborator(collaborator)

	versions := NewVersionService(VersionServiceConfig{
		VersionStore: versionRows,
		ContentStore: content,
	})

	orchestrator := NewJobOrchestrator(JobOrchestratorConfig{
		JobStore:      jobs,
		DocumentStore: documents,
		Versions:      versions,
		Queue:         queue,
		Lock:          lock,
		RenderCache:   cache,
		SettingsStore: settings,
		Registry:      suggestions.DefaultRegistry(),
		Builder:       NewPatchBuilder(PatchBuilderConfig{Pipeline: patchops.DefaultPipeline()}),
		Validator:     NewPatchValidator(),
		Renderer:      NewTrackedChangeRenderer(),
		Services:      services,
	})

	// Keep the tests fast: millisecond backoffs instead of seconds.
	orchestrator.retryBase = time.Millisecond
	orchestrator.lockWait = 250 * time.Millisecond
	orchestrator.lockRetryDelay = 5 * time.Millisecond

	return &orchestratorFixture{
		orchestrator: orchestrator,
		jobs:         jobs,
		documents:    documents,
		versionRows:  versionRows,
		content:      content,
		versions:     versions,
		queue:        queue,
		lock:         lock,
		cache:        cache,
		settings:     settings,
		collaborator: collaborator,
	}
}

// seedDocument creates a document whose content is version 1.
func (f *orchestratorFixture) seedDocument(t *testing.T, content string) *domain.Document {
	t.Helper()
	ctx := context.Background()

	doc := domain.NewDocument("contract.txt", "text/plain")
	if err := f.documents.Create(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if _, err := f.versions.Append(ctx, doc.ID, 1, domain.NewSnapshot(content), nil, "", "Initial upload"); err != nil {
		t.Fatalf("append version 1: %v", err)
	}
	return doc
}

// editResponse is the canonical collaborator output for one replacement.
func editResponse(find, replace string) string {
	return fmt.Sprintf(`{"edits": [{"original_text": %q, "replacement_text": %q, "reasoning": "requested"}]}`, find, replace)
}

// readyJob submits an edit and runs generation through to patch_ready.
func (f *orchestratorFixture) readyJob(t *testing.T, docID, find, replace string) *domain.EditJob {
	t.Helper()
	ctx := context.Background()

	f.collaborator.Response = editResponse(find, replace)
	job, err := f.orchestrator.Submit(ctx, driving.SubmitEditRequest{
		DocumentID:  docID,
		Instruction: fmt.Sprintf("replace %s with %s", find, replace),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	stored := f.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusPatchReady {
		t.Fatalf("job is %s, not patch_ready (failure: %+v)", stored.Status, stored.Failure)
	}
	return stored
}

func hasAuditEvent(job *domain.EditJob, event string) bool {
	for _, entry := range job.Audit {
		if entry.Event == event {
			return true
		}
	}
	return false
}

func TestNewJobOrchestrator_NilLogger(t *testing.T) {
	orchestrator := NewJobOrchestrator(JobOrchestratorConfig{Logger: nil})
	if orchestrator.logger == nil {
		t.Fatal("expected non-nil logger even when not provided")
	}
	if orchestrator.staleJobAge != defaultStaleJobAge {
		t.Errorf("expected default stale age, got %s", orchestrator.staleJobAge)
	}
}

func TestJobOrchestrator_SubmitValidation(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "hello world")

	_, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank instruction: expected ErrInvalidInput, got %v", err)
	}

	_, err = fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: strings.Repeat("x", maxInstructionLen+1)})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("oversized instruction: expected ErrInvalidInput, got %v", err)
	}

	_, err = fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: "nope", Instruction: "do something"})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("missing document: expected ErrDocumentNotFound, got %v", err)
	}

	_, err = fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "do something", BaseVersion: 7})
	if !errors.Is(err, domain.ErrVersionNotFound) {
		t.Errorf("future base version: expected ErrVersionNotFound, got %v", err)
	}
}

func TestJobOrchestrator_SubmitEnqueuesGeneration(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "hello world")

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{
		DocumentID:  doc.ID,
		Instruction: "say goodbye instead",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if job.Status != domain.JobStatusQueued {
		t.Errorf("expected queued, got %s", job.Status)
	}
	if job.BaseVersion != 1 {
		t.Errorf("expected base version 1 (head), got %d", job.BaseVersion)
	}
	if !hasAuditEvent(job, "submitted") {
		t.Error("expected a submitted audit entry")
	}

	tasks := fix.queue.Enqueued()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(tasks))
	}
	if tasks[0].Type != domain.TaskTypeGeneratePatch {
		t.Errorf("expected generate_patch task, got %s", tasks[0].Type)
	}
	if tasks[0].JobID() != job.ID {
		t.Errorf("task payload job_id %q does not match job %q", tasks[0].JobID(), job.ID)
	}
	if tasks[0].DocumentID != doc.ID {
		t.Errorf("task document %q does not match %q", tasks[0].DocumentID, doc.ID)
	}
}

func TestJobOrchestrator_SubmitEnqueueFailureFailsJob(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "hello world")

	fix.queue.EnqueueFn = func(task *domain.Task) error {
		return errors.New("queue backend down")
	}

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{
		DocumentID:  doc.ID,
		Instruction: "say goodbye instead",
	})
	if err == nil {
		t.Fatal("expected submit to fail when the queue is down")
	}
	if job != nil {
		t.Error("expected nil job on enqueue failure")
	}

	// The job row exists and is terminally failed, not stuck in queued.
	listed, _ := fix.jobs.List(ctx, domain.JobFilter{DocumentID: doc.ID})
	if len(listed) != 1 {
		t.Fatalf("expected 1 job row, got %d", len(listed))
	}
	if listed[0].Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", listed[0].Status)
	}
	if listed[0].Failure == nil || listed[0].Failure.Code != domain.FailureCodeStorage {
		t.Errorf("expected storage_error failure, got %+v", listed[0].Failure)
	}
}

func TestJobOrchestrator_GenerateHappyPath(t *testing.T) {
	fix := newTestOrchestrator(t)
	doc := fix.seedDocument(t, "The Client shall pay Vendor.")

	job := fix.readyJob(t, doc.ID, "Client", "TechCorp Industries")

	if job.Patch == nil {
		t.Fatal("expected a patch on the job")
	}
	if job.Patch.BaseVersion != 1 {
		t.Errorf("patch base version = %d, want 1", job.Patch.BaseVersion)
	}
	if job.Patch.CoveredLen() != len("The Client shall pay Vendor.") {
		t.Errorf("patch covers %d bytes, want %d", job.Patch.CoveredLen(), len("The Client shall pay Vendor."))
	}

	result, err := job.Patch.Apply("The Client shall pay Vendor.")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != "The TechCorp Industries shall pay Vendor." {
		t.Errorf("applied result = %q", result)
	}

	stats := job.Patch.Stats()
	if stats.Insertions < 1 || stats.Deletions < 1 {
		t.Errorf("expected at least one insertion and one deletion, got %+v", stats)
	}

	for _, event := range []string{"submitted", "collaborator_responded", "suggestions_decoded", "patch_ready"} {
		if !hasAuditEvent(job, event) {
			t.Errorf("expected %s audit entry, trail: %+v", event, job.Audit)
		}
	}
}

func TestJobOrchestrator_GenerateSkipsNonQueuedJob(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "hello world")

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := fix.orchestrator.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Redelivered task after the cancel: consumed without touching the job.
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("expected redelivered task to be consumed, got %v", err)
	}
	if fix.collaborator.CallCount() != 0 {
		t.Errorf("collaborator called %d times for a cancelled job", fix.collaborator.CallCount())
	}
	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeCancelled {
		t.Errorf("cancelled job was disturbed: %s %+v", stored.Status, stored.Failure)
	}

	// A task for a purged job is consumed too.
	if err := fix.orchestrator.ProcessGenerateTask(ctx, "gone"); err != nil {
		t.Errorf("expected missing-job task to be consumed, got %v", err)
	}
}

func TestJobOrchestrator_GenerateUnrecognizedOutputFails(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "hello world")

	fix.collaborator.Response = "I'm sorry, I can't restructure that document."
	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate task should consume the failure, got %v", err)
	}

	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Failure.Code != domain.FailureCodeMalformedSuggestion {
		t.Errorf("expected malformed_suggestion, got %s", stored.Failure.Code)
	}
	if !hasAuditEvent(stored, "failed") {
		t.Error("expected a failed audit entry")
	}
}

func TestJobOrchestrator_GenerateAmbiguousMatch(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()

	// Strict: two occurrences of the target is a hard failure.
	strict := domain.DefaultEngineSettings()
	strict.StrictMatch = true
	if err := fix.settings.SaveSettings(ctx, strict); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	doc := fix.seedDocument(t, "one fish two fish")
	fix.collaborator.Response = editResponse("fish", "whale")
	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "swap the fish"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeAmbiguousMatch {
		t.Fatalf("strict mode: expected failed/ambiguous_match, got %s %+v", stored.Status, stored.Failure)
	}

	// Lenient: first occurrence wins and the patch carries a warning.
	lenient := domain.DefaultEngineSettings()
	lenient.StrictMatch = false
	if err := fix.settings.SaveSettings(ctx, lenient); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	ready := fix.readyJob(t, doc.ID, "fish", "whale")
	if len(ready.Patch.Warnings) == 0 {
		t.Fatal("expected an ambiguity warning on the patch")
	}
	if !strings.Contains(ready.Patch.Warnings[0], "first occurrence") {
		t.Errorf("warning = %q", ready.Patch.Warnings[0])
	}
	if !hasAuditEvent(ready, "warning") {
		t.Error("expected the warning on the audit trail")
	}

	result, err := ready.Patch.Apply("one fish two fish")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != "one whale two fish" {
		t.Errorf("lenient result = %q", result)
	}
}

func TestJobOrchestrator_CollaboratorTransientRetry(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	calls := 0
	fix.collaborator.ProposeFn = func(content, instruction string) (string, error) {
		calls++
		if calls < 3 {
			return "", &domain.CollaboratorError{Kind: domain.CollaboratorRateLimited, Detail: "429"}
		}
		return editResponse("quick", "slow"), nil
	}

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "slow it down"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusPatchReady {
		t.Fatalf("expected patch_ready after retries, got %s (failure: %+v)", stored.Status, stored.Failure)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (2 retries), got %d", calls)
	}
}

func TestJobOrchestrator_CollaboratorStructuralFailureNotRetried(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	fix.collaborator.ProposeFn = func(content, instruction string) (string, error) {
		return "", &domain.CollaboratorError{Kind: domain.CollaboratorBadResponse, Detail: "refused"}
	}

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if fix.collaborator.CallCount() != 1 {
		t.Errorf("structural failure retried: %d calls", fix.collaborator.CallCount())
	}
	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeCollaborator {
		t.Errorf("expected failed/collaborator_error, got %s %+v", stored.Status, stored.Failure)
	}
}

func TestJobOrchestrator_CollaboratorTimeoutExhaustsRetries(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	fix.collaborator.ProposeFn = func(content, instruction string) (string, error) {
		return "", context.DeadlineExceeded
	}

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Default settings allow 2 retries: 3 attempts total.
	if fix.collaborator.CallCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", fix.collaborator.CallCount())
	}
	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeTimeout {
		t.Errorf("expected failed/timeout, got %s %+v", stored.Status, stored.Failure)
	}
}

func TestJobOrchestrator_CancelDuringGeneratingDropsPatch(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "slow it down"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Cancel lands while the collaborator call is in flight; the
	// generator's final swap must lose and drop its patch.
	fix.collaborator.ProposeFn = func(content, instruction string) (string, error) {
		cancelled, getErr := fix.jobs.Get(ctx, job.ID)
		if getErr != nil {
			t.Fatalf("get mid-flight: %v", getErr)
		}
		cancelled.MarkFailed(domain.FailureCodeCancelled, "cancelled by caller")
		if updateErr := fix.jobs.Update(ctx, cancelled, domain.JobStatusGenerating); updateErr != nil {
			t.Fatalf("cancel mid-flight: %v", updateErr)
		}
		return editResponse("quick", "slow"), nil
	}

	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate should swallow the lost swap, got %v", err)
	}

	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeCancelled {
		t.Errorf("cancel was overwritten: %s %+v", stored.Status, stored.Failure)
	}
	if stored.Patch != nil {
		t.Error("expected the generated patch to be dropped")
	}
}

func TestJobOrchestrator_PreviewLifecycle(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "slow it down"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// No patch yet.
	if _, err := fix.orchestrator.Preview(ctx, job.ID, driving.RenderHTML); !errors.Is(err, domain.ErrPatchNotReady) {
		t.Errorf("expected ErrPatchNotReady before generation, got %v", err)
	}

	fix.collaborator.Response = editResponse("quick", "slow")
	if err := fix.orchestrator.ProcessGenerateTask(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	preview, err := fix.orchestrator.Preview(ctx, job.ID, driving.RenderHTML)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(preview.Rendered, "<del") || !strings.Contains(preview.Rendered, "<ins") {
		t.Errorf("expected tracked markup, got %q", preview.Rendered)
	}
	if preview.Stats.Insertions < 1 || preview.Stats.Deletions < 1 {
		t.Errorf("expected stats on the preview, got %+v", preview.Stats)
	}
	if fix.cache.Len() != 1 {
		t.Errorf("expected the rendering to be cached, cache has %d entries", fix.cache.Len())
	}

	// A repeat preview is served from the cache.
	if err := fix.cache.Set(ctx, job.ID, string(driving.RenderHTML), "CACHED", time.Minute); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	preview, err = fix.orchestrator.Preview(ctx, job.ID, driving.RenderHTML)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if preview.Rendered != "CACHED" {
		t.Errorf("expected cached rendering, got %q", preview.Rendered)
	}

	if _, err := fix.orchestrator.Preview(ctx, job.ID, driving.RenderFormat("pdf")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown format, got %v", err)
	}
}

func TestJobOrchestrator_ApplyHappyPath(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "The Client shall pay Vendor.")

	job := fix.readyJob(t, doc.ID, "Client", "TechCorp Industries")

	// Prime the render cache so we can observe the invalidation.
	if _, err := fix.orchestrator.Preview(ctx, job.ID, driving.RenderInline); err != nil {
		t.Fatalf("preview: %v", err)
	}

	result, err := fix.orchestrator.Apply(ctx, job.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.ResultVersion != 2 {
		t.Errorf("expected version 2, got %d", result.ResultVersion)
	}
	if result.Checksum == "" {
		t.Error("expected a checksum on the result")
	}

	// Document head advanced, new content committed.
	_, head, err := fix.versions.Head(ctx, doc.ID)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Content() != "The TechCorp Industries shall pay Vendor." {
		t.Errorf("head content = %q", head.Content())
	}
	updatedDoc, _ := fix.documents.Get(ctx, doc.ID)
	if updatedDoc.LatestVersion != 2 {
		t.Errorf("document head = %d, want 2", updatedDoc.LatestVersion)
	}

	// Job reached applied with attribution both ways.
	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusApplied {
		t.Errorf("expected applied, got %s", stored.Status)
	}
	if stored.ResultVersion != 2 {
		t.Errorf("job result version = %d", stored.ResultVersion)
	}
	v2, _ := fix.versionRows.Get(ctx, doc.ID, 2)
	if v2.CreatedByJobID != job.ID {
		t.Errorf("version 2 created by %q, want %q", v2.CreatedByJobID, job.ID)
	}
	if !strings.Contains(v2.Description, "AI edit:") {
		t.Errorf("version description = %q", v2.Description)
	}

	// Lock discipline: acquired and released.
	lockName := driven.DocumentLockName(doc.ID)
	if len(fix.lock.Acquires()) == 0 || fix.lock.Acquires()[0] != lockName {
		t.Errorf("expected the document lock to be acquired, got %v", fix.lock.Acquires())
	}
	if fix.lock.IsHeld(lockName) {
		t.Error("document lock still held after apply")
	}

	// Cached previews are gone.
	if fix.cache.Len() != 0 {
		t.Errorf("expected render cache invalidation, %d entries left", fix.cache.Len())
	}
}

func TestJobOrchestrator_ApplyStaleConflictFailsVersionMismatch(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	first := fix.readyJob(t, doc.ID, "quick", "slow")
	second := fix.readyJob(t, doc.ID, "quick", "hasty") // same base, same target

	if _, err := fix.orchestrator.Apply(ctx, first.ID); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	_, err := fix.orchestrator.Apply(ctx, second.ID)
	if err == nil {
		t.Fatal("expected the stale conflicting apply to fail")
	}
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Reason != domain.ValidationVersionMismatch {
		t.Errorf("expected version_mismatch validation error, got %v", err)
	}

	stored := fix.jobs.Stored(second.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeVersionMismatch {
		t.Errorf("expected failed/version_mismatch, got %s %+v", stored.Status, stored.Failure)
	}

	// History is exactly v1, v2: the loser appended nothing.
	count, _ := fix.versionRows.Count(ctx, doc.ID)
	if count != 2 {
		t.Errorf("expected 2 versions, got %d", count)
	}
}

func TestJobOrchestrator_ApplyStaleNonConflictingSucceeds(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "alpha beta gamma")

	first := fix.readyJob(t, doc.ID, "alpha", "omega")  // same length
	second := fix.readyJob(t, doc.ID, "gamma", "delta") // disjoint region

	if _, err := fix.orchestrator.Apply(ctx, first.ID); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// The second patch is stale (built against v1) but still replays
	// cleanly against v2, so it applies as v3.
	result, err := fix.orchestrator.Apply(ctx, second.ID)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if result.ResultVersion != 3 {
		t.Errorf("expected version 3, got %d", result.ResultVersion)
	}

	_, head, err := fix.versions.Head(ctx, doc.ID)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Content() != "omega beta delta" {
		t.Errorf("head content = %q", head.Content())
	}
}

func TestJobOrchestrator_ApplyFromWrongState(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	queued, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := fix.orchestrator.Apply(ctx, queued.ID); !errors.Is(err, domain.ErrPatchNotReady) {
		t.Errorf("apply on queued: expected ErrPatchNotReady, got %v", err)
	}

	ready := fix.readyJob(t, doc.ID, "quick", "slow")
	if _, err := fix.orchestrator.Apply(ctx, ready.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := fix.orchestrator.Apply(ctx, ready.ID); !errors.Is(err, domain.ErrJobFinished) {
		t.Errorf("double apply: expected ErrJobFinished, got %v", err)
	}

	if _, err := fix.orchestrator.Apply(ctx, "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("missing job: expected ErrJobNotFound, got %v", err)
	}
}

func TestJobOrchestrator_ApplyLockContentionFailsJob(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job := fix.readyJob(t, doc.ID, "quick", "slow")

	// Someone else is holding the document beyond the apply's patience.
	fix.lock.SetHeld(driven.DocumentLockName(doc.ID), time.Minute)

	_, err := fix.orchestrator.Apply(ctx, job.ID)
	if err == nil {
		t.Fatal("expected apply to fail under lock contention")
	}

	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeStorage {
		t.Errorf("expected failed/storage_error, got %s %+v", stored.Status, stored.Failure)
	}

	// Nothing was appended.
	count, _ := fix.versionRows.Count(ctx, doc.ID)
	if count != 1 {
		t.Errorf("expected history untouched, got %d versions", count)
	}
}

func TestJobOrchestrator_RejectLifecycle(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job := fix.readyJob(t, doc.ID, "quick", "slow")

	rejected, err := fix.orchestrator.Reject(ctx, job.ID, "too aggressive")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.JobStatusRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}
	if !hasAuditEvent(rejected, "rejected") {
		t.Error("expected a rejected audit entry")
	}

	// The document is untouched.
	count, _ := fix.versionRows.Count(ctx, doc.ID)
	if count != 1 {
		t.Errorf("expected 1 version after reject, got %d", count)
	}

	// Terminal: a second reject or an apply are both refused.
	if _, err := fix.orchestrator.Reject(ctx, job.ID, ""); !errors.Is(err, domain.ErrJobFinished) {
		t.Errorf("double reject: expected ErrJobFinished, got %v", err)
	}
	if _, err := fix.orchestrator.Apply(ctx, job.ID); !errors.Is(err, domain.ErrJobFinished) {
		t.Errorf("apply after reject: expected ErrJobFinished, got %v", err)
	}

	// Reject is only legal from patch_ready.
	queued, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := fix.orchestrator.Reject(ctx, queued.ID, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("reject on queued: expected ErrInvalidTransition, got %v", err)
	}
}

func TestJobOrchestrator_CancelQueuedJob(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job, err := fix.orchestrator.Submit(ctx, driving.SubmitEditRequest{DocumentID: doc.ID, Instruction: "edit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cancelled, err := fix.orchestrator.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.JobStatusFailed || cancelled.Failure.Code != domain.FailureCodeCancelled {
		t.Errorf("expected failed/cancelled, got %s %+v", cancelled.Status, cancelled.Failure)
	}

	// The pending generation task was dropped with it.
	tasks := fix.queue.Enqueued()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != domain.TaskStatusFailed {
		t.Errorf("expected the queue task to be cancelled, got %s", tasks[0].Status)
	}

	if _, err := fix.orchestrator.Cancel(ctx, job.ID); !errors.Is(err, domain.ErrJobFinished) {
		t.Errorf("double cancel: expected ErrJobFinished, got %v", err)
	}
}

func TestJobOrchestrator_CancelRefusedAfterPatchReady(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	job := fix.readyJob(t, doc.ID, "quick", "slow")

	if _, err := fix.orchestrator.Cancel(ctx, job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("cancel on patch_ready: expected ErrInvalidTransition, got %v", err)
	}

	stored := fix.jobs.Stored(job.ID)
	if stored.Status != domain.JobStatusPatchReady {
		t.Errorf("job was disturbed: %s", stored.Status)
	}
}

func TestJobOrchestrator_ReapStaleJobs(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	old := time.Now().Add(-time.Hour)

	stuckQueued := domain.NewEditJob(doc.ID, "stuck queued", 1)
	stuckQueued.CreatedAt = old

	stuckGenerating := domain.NewEditJob(doc.ID, "stuck generating", 1)
	stuckGenerating.MarkGenerating()
	stuckGenerating.GeneratingAt = &old

	stuckApplying := domain.NewEditJob(doc.ID, "stuck applying", 1)
	stuckApplying.MarkApplying()
	stuckApplying.ApplyingAt = &old

	// patch_ready is waiting on a human, not stale.
	waiting := domain.NewEditJob(doc.ID, "awaiting decision", 1)
	waiting.MarkPatchReady(&domain.Patch{BaseVersion: 1, Ops: []domain.Operation{domain.Retain(13)}})
	waiting.ReadyAt = &old

	for _, job := range []*domain.EditJob{stuckQueued, stuckGenerating, stuckApplying, waiting} {
		if err := fix.jobs.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	reaped, err := fix.orchestrator.ReapStaleJobs(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 3 {
		t.Errorf("expected 3 reaped, got %d", reaped)
	}

	for _, id := range []string{stuckQueued.ID, stuckGenerating.ID, stuckApplying.ID} {
		stored := fix.jobs.Stored(id)
		if stored.Status != domain.JobStatusFailed || stored.Failure.Code != domain.FailureCodeTimeout {
			t.Errorf("job %s: expected failed/timeout, got %s %+v", id, stored.Status, stored.Failure)
		}
	}
	if fix.jobs.Stored(waiting.ID).Status != domain.JobStatusPatchReady {
		t.Error("patch_ready job must not be reaped")
	}
}

func TestJobOrchestrator_PurgeOldJobs(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "the quick fox")

	ancient := time.Now().Add(-40 * 24 * time.Hour)
	oldJob := domain.NewEditJob(doc.ID, "ancient", 1)
	oldJob.MarkFailed(domain.FailureCodeInternal, "ancient failure")
	oldJob.FinishedAt = &ancient

	recent := time.Now().Add(-time.Hour)
	freshJob := domain.NewEditJob(doc.ID, "fresh", 1)
	freshJob.MarkFailed(domain.FailureCodeInternal, "fresh failure")
	freshJob.FinishedAt = &recent

	for _, job := range []*domain.EditJob{oldJob, freshJob} {
		if err := fix.jobs.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// Default retention is 30 days.
	purged, err := fix.orchestrator.PurgeOldJobs(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
	if fix.jobs.Stored(oldJob.ID) != nil {
		t.Error("ancient job still present")
	}
	if fix.jobs.Stored(freshJob.ID) == nil {
		t.Error("fresh job was purged")
	}

	// Zero retention disables purging entirely.
	disabled := domain.DefaultEngineSettings()
	disabled.JobRetentionDays = 0
	if err := fix.settings.SaveSettings(ctx, disabled); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	purged, err = fix.orchestrator.PurgeOldJobs(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 0 {
		t.Errorf("expected purging disabled, got %d", purged)
	}
}

func TestJobOrchestrator_ConcurrentAppliesSerialize(t *testing.T) {
	fix := newTestOrchestrator(t)
	ctx := context.Background()
	doc := fix.seedDocument(t, "The Client shall pay Vendor.")

	// Three patch_ready jobs against the same base, all touching the
	// same span: exactly one can win.
	jobs := []*domain.EditJob{
		fix.readyJob(t, doc.ID, "Client", "TechCorp Industries"),
		fix.readyJob(t, doc.ID, "Client", "Initech"),
		fix.readyJob(t, doc.ID, "Client", "Globex"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, jobID string) {
			defer wg.Done()
			_, errs[i] = fix.orchestrator.Apply(ctx, jobID)
		}(i, job.ID)
	}
	wg.Wait()

	applied := 0
	for i, err := range errs {
		if err == nil {
			applied++
			continue
		}
		stored := fix.jobs.Stored(jobs[i].ID)
		if stored.Failure == nil || stored.Failure.Code != domain.FailureCodeVersionMismatch {
			t.Errorf("loser %d: expected version_mismatch, got %+v", i, stored.Failure)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly 1 winning apply, got %d", applied)
	}

	// History stays dense: v1 plus the single winner.
	count, _ := fix.versionRows.Count(ctx, doc.ID)
	if count != 2 {
		t.Errorf("expected 2 versions, got %d", count)
	}
	updatedDoc, _ := fix.documents.Get(ctx, doc.ID)
	if updatedDoc.LatestVersion != 2 {
		t.Errorf("document head = %d, want 2", updatedDoc.LatestVersion)
	}
}
