package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockSettingsStore is a mock of SettingsStore for testing.
// Like the real store, it falls back to domain defaults until something
// has been saved.
type MockSettingsStore struct {
	mu       sync.RWMutex
	settings *domain.EngineSettings

	// SaveFn overrides saves (optional)
	SaveFn func(settings *domain.EngineSettings) error
}

// NewMockSettingsStore creates a new MockSettingsStore
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{}
}

func (m *MockSettingsStore) GetSettings(ctx context.Context) (*domain.EngineSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return domain.DefaultEngineSettings(), nil
	}
	s := *m.settings
	return &s, nil
}

func (m *MockSettingsStore) SaveSettings(ctx context.Context, settings *domain.EngineSettings) error {
	if m.SaveFn != nil {
		return m.SaveFn(settings)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := *settings
	m.settings = &s
	return nil
}

func (m *MockSettingsStore) GetCollaboratorSettings(ctx context.Context) (*domain.CollaboratorSettings, error) {
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	c := settings.Collaborator
	return &c, nil
}

func (m *MockSettingsStore) SaveCollaboratorSettings(ctx context.Context, collab *domain.CollaboratorSettings) error {
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.Collaborator = *collab
	return m.SaveSettings(ctx, settings)
}
