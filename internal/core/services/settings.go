package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
	"github.com/custodia-labs/redline-core/internal/runtime"
)

// Ensure settingsService implements SettingsService
var _ driving.SettingsService = (*settingsService)(nil)

// settingsService owns the engine settings row and keeps the live
// collaborator in sync with the stored configuration.
type settingsService struct {
	settingsStore driven.SettingsStore
	factory       driven.CollaboratorFactory
	services      *runtime.Services
	logger        *slog.Logger
}

// NewSettingsService creates the settings service. Collaborator changes
// are applied to services in place, so running jobs pick them up.
func NewSettingsService(
	settingsStore driven.SettingsStore,
	factory driven.CollaboratorFactory,
	services *runtime.Services,
	logger *slog.Logger,
) driving.SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsService{
		settingsStore: settingsStore,
		factory:       factory,
		services:      services,
		logger:        logger,
	}
}

// Get retrieves the current engine settings
func (s *settingsService) Get(ctx context.Context) (*domain.EngineSettings, error) {
	return s.settingsStore.GetSettings(ctx)
}

// Update applies the non-nil fields and persists the result
func (s *settingsService) Update(ctx context.Context, req driving.UpdateSettingsRequest) (*domain.EngineSettings, error) {
	settings, err := s.settingsStore.GetSettings(ctx)
	if err != nil {
		settings = domain.DefaultEngineSettings()
	}

	if req.DiffGranularity != nil {
		settings.DiffGranularity = *req.DiffGranularity
	}
	if req.StrictMatch != nil {
		settings.StrictMatch = *req.StrictMatch
	}
	if req.EditAuthor != nil {
		author := strings.TrimSpace(*req.EditAuthor)
		if author == "" {
			return nil, fmt.Errorf("%w: edit_author cannot be blank", domain.ErrInvalidInput)
		}
		settings.EditAuthor = author
	}
	if req.JobRetentionDays != nil {
		settings.JobRetentionDays = *req.JobRetentionDays
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.UpdatedAt = time.Now()

	if err := s.settingsStore.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// GetCollaboratorStatus reports the currently active collaborator
func (s *settingsService) GetCollaboratorStatus(ctx context.Context) (*driving.CollaboratorStatus, error) {
	collaborator := s.services.Collaborator()
	if collaborator == nil {
		return &driving.CollaboratorStatus{Available: false}, nil
	}

	status := &driving.CollaboratorStatus{
		Available: true,
		Provider:  collaborator.Provider(),
		Model:     collaborator.Model(),
	}
	if stored, err := s.settingsStore.GetCollaboratorSettings(ctx); err == nil {
		status.BaseURL = stored.BaseURL
	}
	return status, nil
}

// UpdateCollaborator persists collaborator configuration and hot-swaps the
// live collaborator. The api_key is write-only: an empty key in the request
// keeps the stored one.
func (s *settingsService) UpdateCollaborator(ctx context.Context, req driving.UpdateCollaboratorRequest) (*driving.CollaboratorStatus, error) {
	if !req.Provider.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProvider, req.Provider)
	}

	collab, err := s.settingsStore.GetCollaboratorSettings(ctx)
	if err != nil {
		defaults := domain.DefaultEngineSettings()
		collab = &defaults.Collaborator
	}

	collab.Provider = req.Provider
	if req.Model != "" {
		collab.Model = req.Model
	}
	if req.APIKey != "" {
		collab.APIKey = req.APIKey
	}
	if req.BaseURL != "" {
		collab.BaseURL = req.BaseURL
	}
	if req.Temperature != nil {
		collab.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		collab.MaxTokens = *req.MaxTokens
	}
	if req.Timeout != nil {
		collab.TimeoutSeconds = *req.Timeout
	}
	if req.MaxRetries != nil {
		collab.MaxRetries = *req.MaxRetries
	}

	if collab.Provider.RequiresAPIKey() && collab.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is required for provider %s", domain.ErrInvalidInput, collab.Provider)
	}
	if collab.Temperature < 0 || collab.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 2", domain.ErrInvalidInput)
	}
	if collab.MaxRetries < 0 || collab.MaxRetries > 10 {
		return nil, fmt.Errorf("%w: max_retries must be between 0 and 10", domain.ErrInvalidInput)
	}

	if err := s.settingsStore.SaveCollaboratorSettings(ctx, collab); err != nil {
		return nil, err
	}

	// Hot swap. The configuration is already saved; a collaborator that
	// cannot be built or pinged just reports as unavailable.
	collaborator, err := s.factory.CreateCollaborator(collab)
	if err != nil {
		s.logger.Warn("failed to create collaborator from new settings",
			"provider", collab.Provider, "error", err)
		s.services.SetCollaborator(nil)
		return &driving.CollaboratorStatus{Available: false}, nil
	}
	if collaborator == nil {
		s.services.SetCollaborator(nil)
		return &driving.CollaboratorStatus{Available: false}, nil
	}

	if err := s.services.ValidateAndSetCollaborator(ctx, collaborator); err != nil {
		s.logger.Warn("new collaborator failed its ping",
			"provider", collab.Provider, "error", err)
		return &driving.CollaboratorStatus{Available: false}, nil
	}

	s.logger.Info("collaborator reconfigured",
		"provider", collaborator.Provider(), "model", collaborator.Model())

	return &driving.CollaboratorStatus{
		Available: true,
		Provider:  collaborator.Provider(),
		Model:     collaborator.Model(),
		BaseURL:   collab.BaseURL,
	}, nil
}

// TestCollaborator pings the active collaborator
func (s *settingsService) TestCollaborator(ctx context.Context) error {
	collaborator := s.services.Collaborator()
	if collaborator == nil {
		return fmt.Errorf("%w: no collaborator configured", domain.ErrServiceUnavailable)
	}
	return collaborator.Ping(ctx)
}
