package ai

import (
	"fmt"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Ensure Factory implements CollaboratorFactory
var _ driven.CollaboratorFactory = (*Factory)(nil)

// Factory creates model collaborators based on configuration
type Factory struct{}

// NewFactory creates a new collaborator factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateCollaborator creates a collaborator from settings. It returns
// nil, nil when settings are not configured (no provider, or a provider
// that needs an API key without one); callers treat that as "no
// collaborator" and fall back to the stub.
func (f *Factory) CreateCollaborator(settings *domain.CollaboratorSettings) (driven.ModelCollaborator, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.CollaboratorProviderOpenAI:
		return NewOpenAICollaborator(*settings)
	case domain.CollaboratorProviderStub:
		return NewStubCollaborator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
