package driving

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// UpdateSettingsRequest updates engine settings. Nil fields are left
// unchanged. Collaborator configuration is managed separately via
// UpdateCollaboratorRequest and the /settings/collaborator endpoint.
type UpdateSettingsRequest struct {
	DiffGranularity  *domain.DiffGranularity `json:"diff_granularity,omitempty"`
	StrictMatch      *bool                   `json:"strict_match,omitempty"`
	EditAuthor       *string                 `json:"edit_author,omitempty"`
	JobRetentionDays *int                    `json:"job_retention_days,omitempty"`
}

// UpdateCollaboratorRequest reconfigures the model collaborator.
type UpdateCollaboratorRequest struct {
	Provider    domain.CollaboratorProvider `json:"provider"`
	Model       string                      `json:"model"`
	APIKey      string                      `json:"api_key,omitempty"`
	BaseURL     string                      `json:"base_url,omitempty"`
	Temperature *float32                    `json:"temperature,omitempty"`
	MaxTokens   *int                        `json:"max_tokens,omitempty"`
	Timeout     *int                        `json:"timeout_seconds,omitempty"`
	MaxRetries  *int                        `json:"max_retries,omitempty"`
}

// CollaboratorStatus reports which collaborator is live, without the key.
type CollaboratorStatus struct {
	Available bool                        `json:"available"`
	Provider  domain.CollaboratorProvider `json:"provider,omitempty"`
	Model     string                      `json:"model,omitempty"`
	BaseURL   string                      `json:"base_url,omitempty"`
}

// SettingsService manages engine settings and collaborator configuration
type SettingsService interface {
	// Get retrieves the current engine settings
	Get(ctx context.Context) (*domain.EngineSettings, error)

	// Update applies the non-nil fields and persists the result
	Update(ctx context.Context, req UpdateSettingsRequest) (*domain.EngineSettings, error)

	// GetCollaboratorStatus reports the currently active collaborator
	GetCollaboratorStatus(ctx context.Context) (*CollaboratorStatus, error)

	// UpdateCollaborator persists collaborator configuration and
	// hot-swaps the live collaborator
	UpdateCollaborator(ctx context.Context, req UpdateCollaboratorRequest) (*CollaboratorStatus, error)

	// TestCollaborator pings the active collaborator
	TestCollaborator(ctx context.Context) error
}
