package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// DocumentStore handles document metadata persistence (PostgreSQL)
type DocumentStore interface {
	// Create inserts a new document
	Create(ctx context.Context, doc *domain.Document) error

	// Get loads one document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List retrieves documents ordered by creation time with pagination
	List(ctx context.Context, limit, offset int) ([]*domain.Document, error)

	// Count reports how many documents exist
	Count(ctx context.Context) (int, error)

	// Delete deletes a document and all its versions
	Delete(ctx context.Context, id string) error
}

// VersionStore handles the append-only version history (PostgreSQL).
// Version numbers for a document are dense: 1, 2, 3, ... with no gaps,
// and existing rows are never mutated.
type VersionStore interface {
	// Append inserts a version row and advances the document head in one
	// transaction. v.Number must be exactly the current head plus one;
	// if another writer got there first the append fails with a
	// ValidationError (version mismatch) and nothing is written.
	Append(ctx context.Context, v *domain.Version) error

	// Get retrieves a single version of a document
	Get(ctx context.Context, documentID string, number int) (*domain.Version, error)

	// Latest retrieves the highest-numbered version of a document
	Latest(ctx context.Context, documentID string) (*domain.Version, error)

	// List retrieves version summaries for a document, newest first
	List(ctx context.Context, documentID string, limit, offset int) ([]*domain.VersionSummary, error)

	// Count returns the number of versions a document has
	Count(ctx context.Context, documentID string) (int, error)
}

// JobStore handles edit job persistence (PostgreSQL)
type JobStore interface {
	// Create inserts a new job in its initial status
	Create(ctx context.Context, job *domain.EditJob) error

	// Get retrieves a job by ID
	Get(ctx context.Context, id string) (*domain.EditJob, error)

	// Update persists the job's current fields guarded by a status check:
	// the row is written only if its stored status still equals expected.
	// Returns domain.ErrInvalidTransition if another writer moved it first.
	Update(ctx context.Context, job *domain.EditJob, expected domain.JobStatus) error

	// List retrieves jobs matching the filter, newest first
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.EditJob, error)

	// CountByStatus returns job counts grouped by status
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// ListStale retrieves non-terminal jobs that have sat in one of the
	// given statuses longer than olderThan (for the stale reaper)
	ListStale(ctx context.Context, statuses []domain.JobStatus, olderThan time.Duration) ([]*domain.EditJob, error)

	// PurgeTerminal deletes terminal jobs finished more than olderThan ago.
	// Returns the number of jobs removed.
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error)
}
