package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockDistributedLock is an in-memory mock of DistributedLock for testing.
// Beyond simulating lock state it records every acquire and release, so
// tests can assert on lock discipline (held during apply, released after).
type MockDistributedLock struct {
	mu       sync.Mutex
	held     map[string]time.Time // name -> expiry
	acquires []string
	releases []string

	// When set, a hook replaces the default behavior of its method.
	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
}

// NewMockDistributedLock returns a mock with an empty lock table.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		held: make(map[string]time.Time),
	}
}

// heldNow reports whether name is held and unexpired. Caller holds mu.
func (m *MockDistributedLock) heldNow(name string) bool {
	expiry, ok := m.held[name]
	return ok && time.Now().Before(expiry)
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.acquires = append(m.acquires, name)
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}
	if m.heldNow(name) {
		return false, nil
	}
	m.held[name] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releases = append(m.releases, name)
	if m.ReleaseFn != nil {
		return m.ReleaseFn(name)
	}
	delete(m.held, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.heldNow(name) {
		return fmt.Errorf("extend %s: not held", name)
	}
	m.held[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return nil
}

// IsHeld reports whether a lock is currently held (for test assertions)
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldNow(name)
}

// SetHeld forces a lock to be held by someone else (for test setup)
func (m *MockDistributedLock) SetHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = time.Now().Add(ttl)
}

// Acquires returns the names passed to Acquire, in order
func (m *MockDistributedLock) Acquires() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquires...)
}

// Releases returns the names passed to Release, in order
func (m *MockDistributedLock) Releases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.releases...)
}

// Reset clears lock state and recorded calls (useful between tests)
func (m *MockDistributedLock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = make(map[string]time.Time)
	m.acquires = nil
	m.releases = nil
}
