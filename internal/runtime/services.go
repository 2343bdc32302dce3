package runtime

import (
	"context"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Services is the registry for the one dependency that can be swapped
// while the process runs: the model collaborator, reconfigured through
// the settings API. Reads go through the lock, so the generation path
// always sees a fully swapped-in collaborator.
type Services struct {
	mu           sync.RWMutex
	config       *domain.RuntimeConfig
	collaborator driven.ModelCollaborator
}

// NewServices creates a registry with no collaborator wired yet.
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{config: config}
}

// Config returns the capability flags shared with the health endpoint.
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// Collaborator returns the current model collaborator, nil when none
// is configured.
func (s *Services) Collaborator() driven.ModelCollaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collaborator
}

// SetCollaborator swaps the collaborator in, closing the one it
// replaces, and keeps the capability flags in step.
func (s *Services) SetCollaborator(c driven.ModelCollaborator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapLocked(c)
}

// ValidateAndSetCollaborator pings the candidate before swapping it
// in. On ping failure the candidate is closed and the incumbent stays
// live.
func (s *Services) ValidateAndSetCollaborator(ctx context.Context, c driven.ModelCollaborator) error {
	if c != nil {
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return err
		}
	}
	s.SetCollaborator(c)
	return nil
}

// Close drops the collaborator and clears the capability flags.
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapLocked(nil)
	return nil
}

// swapLocked replaces the collaborator. Callers hold s.mu.
func (s *Services) swapLocked(c driven.ModelCollaborator) {
	if old := s.collaborator; old != nil {
		_ = old.Close()
	}
	s.collaborator = c

	if c != nil {
		s.config.SetCollaborator(c.Provider(), true)
	} else {
		s.config.SetCollaborator("", false)
	}
}
