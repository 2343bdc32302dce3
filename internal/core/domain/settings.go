package domain

import "time"

// CollaboratorProvider identifies the model collaborator implementation
type CollaboratorProvider string

const (
	CollaboratorProviderOpenAI CollaboratorProvider = "openai"
	CollaboratorProviderStub   CollaboratorProvider = "stub"
)

// RequiresAPIKey reports whether the provider needs a credential.
func (p CollaboratorProvider) RequiresAPIKey() bool {
	switch p {
	case CollaboratorProviderStub:
		return false // Deterministic, in-process
	default:
		return true
	}
}

// IsValid reports whether the provider is one this build knows.
func (p CollaboratorProvider) IsValid() bool {
	switch p {
	case CollaboratorProviderOpenAI, CollaboratorProviderStub:
		return true
	default:
		return false
	}
}

// DiffGranularity selects the unit the patch builder diffs at.
// Char yields precise patches; word yields more readable ones.
type DiffGranularity string

const (
	GranularityChar DiffGranularity = "char"
	GranularityWord DiffGranularity = "word"
)

// IsValid returns true if this is a known granularity
func (g DiffGranularity) IsValid() bool {
	return g == GranularityChar || g == GranularityWord
}

// EngineSettings holds the runtime-tunable patch engine configuration.
// This can be updated at runtime via API.
type EngineSettings struct {
	// Patch building
	DiffGranularity DiffGranularity `json:"diff_granularity"`

	// StrictMatch makes an ambiguous replace target a hard failure.
	// When false, the builder picks the first occurrence and records
	// a warning on the job's audit trail.
	StrictMatch bool `json:"strict_match"`

	// EditAuthor attributes insert/delete operations in tracked changes.
	EditAuthor string `json:"edit_author"`

	// Collaborator configuration
	Collaborator CollaboratorSettings `json:"collaborator"`

	// Maintenance
	JobRetentionDays int `json:"job_retention_days"`

	// Metadata
	UpdatedAt time.Time `json:"updated_at"`
}

// CollaboratorSettings configures the model collaborator
type CollaboratorSettings struct {
	Provider CollaboratorProvider `json:"provider"`
	Model    string               `json:"model"`
	APIKey   string               `json:"-"` // Never serialize
	BaseURL  string               `json:"base_url,omitempty"`

	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`

	// MaxRetries bounds retries on transient failures (timeouts, rate
	// limits). Structural failures are never retried.
	MaxRetries int `json:"max_retries"`
}

// IsConfigured returns true if collaborator settings are properly configured
func (c *CollaboratorSettings) IsConfigured() bool {
	if c.Provider == "" {
		return false
	}
	if c.Provider.RequiresAPIKey() && c.APIKey == "" {
		return false
	}
	return true
}

// Timeout returns the configured call timeout as a duration.
func (c *CollaboratorSettings) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultEngineSettings returns sensible defaults
func DefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		DiffGranularity: GranularityChar,
		StrictMatch:     false,
		EditAuthor:      "ai-editor",
		Collaborator: CollaboratorSettings{
			Provider:       CollaboratorProviderStub,
			Model:          "gpt-4o-mini",
			Temperature:    0.3,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		JobRetentionDays: 30,
		UpdatedAt:        time.Now(),
	}
}

// Validate checks if EngineSettings are valid
func (s *EngineSettings) Validate() error {
	if !s.DiffGranularity.IsValid() {
		return ErrInvalidInput
	}
	if s.Collaborator.Provider != "" && !s.Collaborator.Provider.IsValid() {
		return ErrInvalidProvider
	}
	if s.Collaborator.MaxRetries < 0 || s.Collaborator.MaxRetries > 10 {
		return ErrInvalidInput
	}
	if s.Collaborator.Temperature < 0 || s.Collaborator.Temperature > 2 {
		return ErrInvalidInput
	}
	if s.JobRetentionDays < 0 {
		return ErrInvalidInput
	}
	return nil
}
