package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore implements driven.SettingsStore using PostgreSQL.
// Engine and collaborator settings each live in a single row keyed by a
// fixed ID; reads fall back to domain defaults until something has been
// saved. The collaborator API key never reaches the table in the clear:
// it is sealed with AES-GCM and stored as an opaque blob.
type SettingsStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewSettingsStore creates a settings store that seals API keys with the
// given encryptor before they touch the database.
func NewSettingsStore(db *DB, encryptor *SecretEncryptor) *SettingsStore {
	return &SettingsStore{db: db, encryptor: encryptor}
}

// settingsRowID keys the singleton rows
const settingsRowID = 1

// GetSettings retrieves the engine settings, including the collaborator
// configuration, with defaults for anything not yet saved
func (s *SettingsStore) GetSettings(ctx context.Context) (*domain.EngineSettings, error) {
	query := `
		SELECT diff_granularity, strict_match, edit_author, job_retention_days, updated_at
		FROM engine_settings
		WHERE id = $1
	`

	settings := domain.DefaultEngineSettings()

	err := s.db.QueryRowContext(ctx, query, settingsRowID).Scan(
		&settings.DiffGranularity,
		&settings.StrictMatch,
		&settings.EditAuthor,
		&settings.JobRetentionDays,
		&settings.UpdatedAt,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	collab, err := s.GetCollaboratorSettings(ctx)
	if err != nil {
		return nil, err
	}
	settings.Collaborator = *collab

	return settings, nil
}

// SaveSettings persists the engine settings. The embedded collaborator
// configuration is written too, so a full settings save round-trips.
func (s *SettingsStore) SaveSettings(ctx context.Context, settings *domain.EngineSettings) error {
	query := `
		INSERT INTO engine_settings (id, diff_granularity, strict_match, edit_author, job_retention_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			diff_granularity = EXCLUDED.diff_granularity,
			strict_match = EXCLUDED.strict_match,
			edit_author = EXCLUDED.edit_author,
			job_retention_days = EXCLUDED.job_retention_days,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		settingsRowID,
		string(settings.DiffGranularity),
		settings.StrictMatch,
		settings.EditAuthor,
		settings.JobRetentionDays,
		settings.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return s.SaveCollaboratorSettings(ctx, &settings.Collaborator)
}

// GetCollaboratorSettings retrieves collaborator configuration with the
// API key decrypted
func (s *SettingsStore) GetCollaboratorSettings(ctx context.Context) (*domain.CollaboratorSettings, error) {
	query := `
		SELECT provider, model, api_key_blob, base_url, temperature, max_tokens, timeout_seconds, max_retries
		FROM collaborator_settings
		WHERE id = $1
	`

	var collab domain.CollaboratorSettings
	var keyBlob []byte

	err := s.db.QueryRowContext(ctx, query, settingsRowID).Scan(
		&collab.Provider,
		&collab.Model,
		&keyBlob,
		&collab.BaseURL,
		&collab.Temperature,
		&collab.MaxTokens,
		&collab.TimeoutSeconds,
		&collab.MaxRetries,
	)
	if err == sql.ErrNoRows {
		defaults := domain.DefaultEngineSettings().Collaborator
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}

	if len(keyBlob) > 0 {
		key, err := s.encryptor.DecryptString(keyBlob)
		if err != nil {
			return nil, fmt.Errorf("decrypt api key: %w", err)
		}
		collab.APIKey = key
	}

	return &collab, nil
}

// SaveCollaboratorSettings persists collaborator configuration,
// encrypting the API key at rest. An empty key stores NULL.
func (s *SettingsStore) SaveCollaboratorSettings(ctx context.Context, collab *domain.CollaboratorSettings) error {
	var keyBlob []byte
	if collab.APIKey != "" {
		var err error
		keyBlob, err = s.encryptor.EncryptString(collab.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt api key: %w", err)
		}
	}

	query := `
		INSERT INTO collaborator_settings (id, provider, model, api_key_blob, base_url,
										   temperature, max_tokens, timeout_seconds, max_retries, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			api_key_blob = EXCLUDED.api_key_blob,
			base_url = EXCLUDED.base_url,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			timeout_seconds = EXCLUDED.timeout_seconds,
			max_retries = EXCLUDED.max_retries,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		settingsRowID,
		string(collab.Provider),
		collab.Model,
		keyBlob,
		collab.BaseURL,
		collab.Temperature,
		collab.MaxTokens,
		collab.TimeoutSeconds,
		collab.MaxRetries,
		time.Now(),
	)
	return err
}
