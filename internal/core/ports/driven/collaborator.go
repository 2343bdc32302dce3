package driven

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// ModelCollaborator is the external model that proposes edits. It never
// touches storage: it receives the base snapshot plus the instruction and
// returns raw response text, which the suggestion decoders turn into hints.
type ModelCollaborator interface {
	// Propose asks the collaborator for edit suggestions against content.
	// The returned string is the model's raw response; callers must not
	// assume any particular format. Failures are reported as
	// *domain.CollaboratorError so the orchestrator can tell transient
	// faults (timeout, rate limit) from permanent ones.
	Propose(ctx context.Context, content, instruction string) (string, error)

	// Provider returns which backend this collaborator talks to
	Provider() domain.CollaboratorProvider

	// Model names the model proposals come from
	Model() string

	// Ping verifies the collaborator is available
	Ping(ctx context.Context) error

	// Close releases resources held by the collaborator
	Close() error
}

// CollaboratorFactory creates collaborators based on configuration
type CollaboratorFactory interface {
	// CreateCollaborator creates a collaborator from settings.
	// Returns nil, nil if settings are not configured.
	CreateCollaborator(settings *domain.CollaboratorSettings) (ModelCollaborator, error)
}
