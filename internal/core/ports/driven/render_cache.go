package driven

import (
	"context"
	"time"
)

// RenderCache caches rendered tracked-changes previews (Redis).
// Rendering is deterministic for a given job's patch, so entries are keyed
// by job ID and output format and invalidated when the job leaves
// patch_ready.
type RenderCache interface {
	// Get retrieves a cached rendering.
	// Returns domain.ErrNotFound on a cache miss.
	Get(ctx context.Context, jobID, format string) (string, error)

	// Set stores a rendering with the given TTL
	Set(ctx context.Context, jobID, format, rendered string, ttl time.Duration) error

	// DeleteByJob removes all cached renderings for a job
	DeleteByJob(ctx context.Context, jobID string) error
}
