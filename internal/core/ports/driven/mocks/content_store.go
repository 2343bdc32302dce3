package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockContentStore is an in-memory mock of ContentStore for testing
type MockContentStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// When set, a hook replaces the default behavior of its method.
	PutFn func(key string, content []byte) error
	GetFn func(key string) ([]byte, error)
}

// NewMockContentStore creates a new MockContentStore
func NewMockContentStore() *MockContentStore {
	return &MockContentStore{
		objects: make(map[string][]byte),
	}
}

func (m *MockContentStore) Put(ctx context.Context, key string, content []byte) error {
	if m.PutFn != nil {
		return m.PutFn(key, content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), content...)
	return nil
}

func (m *MockContentStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFn != nil {
		return m.GetFn(key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (m *MockContentStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MockContentStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MockContentStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockContentStore) Close() error {
	return nil
}

// Len returns the number of stored objects (for test assertions)
func (m *MockContentStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Reset clears all objects (useful between tests)
func (m *MockContentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string][]byte)
}
