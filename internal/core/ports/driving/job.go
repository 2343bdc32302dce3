package driving

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// SubmitEditRequest asks for a natural-language edit against a document.
type SubmitEditRequest struct {
	DocumentID  string `json:"document_id"`
	Instruction string `json:"instruction"`

	// BaseVersion pins the version the patch is built against. Zero
	// means the document's current head at submission time.
	BaseVersion int `json:"base_version,omitempty"`
}

// PatchPreview is a rendered view of a pending patch plus its stats.
type PatchPreview struct {
	JobID       string            `json:"job_id"`
	DocumentID  string            `json:"document_id"`
	BaseVersion int               `json:"base_version"`
	Format      RenderFormat      `json:"format"`
	Rendered    string            `json:"rendered"`
	Stats       domain.PatchStats `json:"stats"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// ApplyResult reports the version a successful apply produced.
type ApplyResult struct {
	JobID         string `json:"job_id"`
	DocumentID    string `json:"document_id"`
	ResultVersion int    `json:"result_version"`
	Checksum      string `json:"checksum"`
}

// JobService drives edit jobs through their lifecycle: submission,
// preview, and the explicit apply/reject/cancel decisions.
type JobService interface {
	// Submit validates the request, creates a queued job and enqueues
	// its generation task
	Submit(ctx context.Context, req SubmitEditRequest) (*domain.EditJob, error)

	// Get retrieves a job by ID
	Get(ctx context.Context, id string) (*domain.EditJob, error)

	// List retrieves jobs matching the filter, newest first
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.EditJob, error)

	// Preview renders the pending patch of a patch_ready job
	Preview(ctx context.Context, jobID string, format RenderFormat) (*PatchPreview, error)

	// Apply re-validates the pending patch against the document head and,
	// if it still holds, appends the new version
	Apply(ctx context.Context, jobID string) (*ApplyResult, error)

	// Reject discards the pending patch; the document is untouched
	Reject(ctx context.Context, jobID string, reason string) (*domain.EditJob, error)

	// Cancel aborts a job that has not reached patch_ready yet
	Cancel(ctx context.Context, jobID string) (*domain.EditJob, error)

	// CountByStatus returns job counts grouped by status
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}
