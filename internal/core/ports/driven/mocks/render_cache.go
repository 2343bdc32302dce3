package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockRenderCache is an in-memory mock of RenderCache for testing.
// TTLs are recorded but never enforced.
type MockRenderCache struct {
	mu      sync.RWMutex
	entries map[string]string
	lastTTL time.Duration

	// GetFn overrides lookups (optional)
	GetFn func(jobID, format string) (string, error)
}

// NewMockRenderCache creates a new MockRenderCache
func NewMockRenderCache() *MockRenderCache {
	return &MockRenderCache{
		entries: make(map[string]string),
	}
}

func (m *MockRenderCache) Get(ctx context.Context, jobID, format string) (string, error) {
	if m.GetFn != nil {
		return m.GetFn(jobID, format)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rendered, ok := m.entries[jobID+":"+format]
	if !ok {
		return "", domain.ErrNotFound
	}
	return rendered, nil
}

func (m *MockRenderCache) Set(ctx context.Context, jobID, format, rendered string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jobID+":"+format] = rendered
	m.lastTTL = ttl
	return nil
}

func (m *MockRenderCache) DeleteByJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, jobID+":") {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len returns the number of cached entries (for test assertions)
func (m *MockRenderCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// LastTTL returns the TTL passed to the most recent Set
func (m *MockRenderCache) LastTTL() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTTL
}
