package domain

import (
	"testing"
	"time"
)

func TestDefaultEngineSettings(t *testing.T) {
	s := DefaultEngineSettings()

	if s.DiffGranularity != GranularityChar {
		t.Errorf("expected char granularity, got %s", s.DiffGranularity)
	}
	if s.StrictMatch {
		t.Error("expected lenient matching by default")
	}
	if s.Collaborator.Provider != CollaboratorProviderStub {
		t.Errorf("expected stub provider, got %s", s.Collaborator.Provider)
	}
	if s.Collaborator.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", s.Collaborator.MaxRetries)
	}
	if s.Collaborator.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", s.Collaborator.Temperature)
	}
	if s.JobRetentionDays != 30 {
		t.Errorf("expected 30 day retention, got %d", s.JobRetentionDays)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestEngineSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineSettings)
	}{
		{"bad granularity", func(s *EngineSettings) { s.DiffGranularity = "paragraph" }},
		{"bad provider", func(s *EngineSettings) { s.Collaborator.Provider = "claude" }},
		{"negative retries", func(s *EngineSettings) { s.Collaborator.MaxRetries = -1 }},
		{"excessive retries", func(s *EngineSettings) { s.Collaborator.MaxRetries = 50 }},
		{"bad temperature", func(s *EngineSettings) { s.Collaborator.Temperature = 3.5 }},
		{"negative retention", func(s *EngineSettings) { s.JobRetentionDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultEngineSettings()
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCollaboratorProviderRequiresAPIKey(t *testing.T) {
	if CollaboratorProviderStub.RequiresAPIKey() {
		t.Error("stub must not require an API key")
	}
	if !CollaboratorProviderOpenAI.RequiresAPIKey() {
		t.Error("openai requires an API key")
	}
}

func TestCollaboratorSettingsIsConfigured(t *testing.T) {
	c := CollaboratorSettings{Provider: CollaboratorProviderStub}
	if !c.IsConfigured() {
		t.Error("stub is always configured")
	}

	c = CollaboratorSettings{Provider: CollaboratorProviderOpenAI}
	if c.IsConfigured() {
		t.Error("openai without key must not be configured")
	}

	c.APIKey = "sk-test"
	if !c.IsConfigured() {
		t.Error("openai with key must be configured")
	}

	c = CollaboratorSettings{}
	if c.IsConfigured() {
		t.Error("empty provider must not be configured")
	}
}

func TestCollaboratorSettingsTimeout(t *testing.T) {
	c := CollaboratorSettings{TimeoutSeconds: 15}
	if c.Timeout() != 15*time.Second {
		t.Errorf("expected 15s, got %v", c.Timeout())
	}

	c = CollaboratorSettings{}
	if c.Timeout() != 60*time.Second {
		t.Errorf("expected 60s default, got %v", c.Timeout())
	}
}

func TestDiffGranularityIsValid(t *testing.T) {
	if !GranularityChar.IsValid() || !GranularityWord.IsValid() {
		t.Error("expected char and word to be valid")
	}
	if DiffGranularity("sentence").IsValid() {
		t.Error("expected unknown granularity to be invalid")
	}
}
