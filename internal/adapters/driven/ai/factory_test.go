package ai

import (
	"errors"
	"testing"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

func TestFactoryCreateCollaborator(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.CollaboratorSettings
		// provider "" means expect no collaborator (nil, nil)
		provider domain.CollaboratorProvider
		wantErr  error
	}{
		{
			name: "nil settings mean no collaborator",
		},
		{
			name:     "blank settings mean no collaborator",
			settings: &domain.CollaboratorSettings{},
		},
		{
			// OpenAI without a key is unconfigured, not an error;
			// callers fall back to the stub.
			name: "openai without key means no collaborator",
			settings: &domain.CollaboratorSettings{
				Provider: domain.CollaboratorProviderOpenAI,
				Model:    "gpt-4o-mini",
			},
		},
		{
			name: "openai with key",
			settings: &domain.CollaboratorSettings{
				Provider: domain.CollaboratorProviderOpenAI,
				Model:    "gpt-4o-mini",
				APIKey:   "sk-test",
			},
			provider: domain.CollaboratorProviderOpenAI,
		},
		{
			name: "stub needs no key",
			settings: &domain.CollaboratorSettings{
				Provider: domain.CollaboratorProviderStub,
			},
			provider: domain.CollaboratorProviderStub,
		},
		{
			name: "unknown provider",
			settings: &domain.CollaboratorSettings{
				Provider: "mystery-llm",
				Model:    "some-model",
				APIKey:   "test-key",
			},
			wantErr: domain.ErrInvalidProvider,
		},
	}

	factory := NewFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collaborator, err := factory.CreateCollaborator(tt.settings)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.provider == "" {
				if collaborator != nil {
					t.Fatalf("expected no collaborator, got %s", collaborator.Provider())
				}
				return
			}
			if collaborator == nil {
				t.Fatal("expected a collaborator")
			}
			if collaborator.Provider() != tt.provider {
				t.Errorf("expected provider %s, got %s", tt.provider, collaborator.Provider())
			}
			if tt.settings.Model != "" && collaborator.Model() != tt.settings.Model {
				t.Errorf("expected model %s, got %s", tt.settings.Model, collaborator.Model())
			}
		})
	}
}
