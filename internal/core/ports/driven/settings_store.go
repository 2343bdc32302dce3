package driven

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// SettingsStore persists engine settings. There is a single settings row;
// implementations return domain defaults when nothing has been saved yet.
type SettingsStore interface {
	// GetSettings retrieves the engine settings
	GetSettings(ctx context.Context) (*domain.EngineSettings, error)

	// SaveSettings persists the engine settings
	SaveSettings(ctx context.Context, settings *domain.EngineSettings) error

	// GetCollaboratorSettings retrieves collaborator configuration with the
	// API key decrypted
	GetCollaboratorSettings(ctx context.Context) (*domain.CollaboratorSettings, error)

	// SaveCollaboratorSettings persists collaborator configuration,
	// encrypting the API key at rest
	SaveCollaboratorSettings(ctx context.Context, settings *domain.CollaboratorSettings) error
}
