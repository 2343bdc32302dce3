package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RenderCache = (*RenderCache)(nil)

const (
	// Redis key namespaces
	renderPrefix    = "render:"
	renderJobPrefix = "render:job:"
)

// RenderCache implements driven.RenderCache using Redis.
// Entries expire via Redis TTL; a per-job set tracks which formats are
// cached so an invalidation can remove them all without scanning.
type RenderCache struct {
	client *redis.Client
}

// NewRenderCache creates a new Redis-backed RenderCache
func NewRenderCache(client *redis.Client) *RenderCache {
	return &RenderCache{client: client}
}

func renderKey(jobID, format string) string {
	return renderPrefix + jobID + ":" + format
}

// Get retrieves a cached rendering
func (c *RenderCache) Get(ctx context.Context, jobID, format string) (string, error) {
	rendered, err := c.client.Get(ctx, renderKey(jobID, format)).Result()
	if err == redis.Nil {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get rendering: %w", err)
	}

	return rendered, nil
}

// Set stores a rendering with the given TTL
func (c *RenderCache) Set(ctx context.Context, jobID, format, rendered string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	pipe := c.client.Pipeline()

	pipe.Set(ctx, renderKey(jobID, format), rendered, ttl)

	// Track the format in the job's set so DeleteByJob can find it.
	// The set outliving an entry is harmless; deletion tolerates misses.
	pipe.SAdd(ctx, renderJobPrefix+jobID, format)
	pipe.Expire(ctx, renderJobPrefix+jobID, ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to cache rendering: %w", err)
	}

	return nil
}

// DeleteByJob removes all cached renderings for a job.
// Called when the job leaves patch_ready, so a stale preview can never
// be served for an applied or rejected patch.
func (c *RenderCache) DeleteByJob(ctx context.Context, jobID string) error {
	formats, err := c.client.SMembers(ctx, renderJobPrefix+jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to list cached formats: %w", err)
	}

	pipe := c.client.Pipeline()

	for _, format := range formats {
		pipe.Del(ctx, renderKey(jobID, format))
	}
	pipe.Del(ctx, renderJobPrefix+jobID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete renderings: %w", err)
	}

	return nil
}
