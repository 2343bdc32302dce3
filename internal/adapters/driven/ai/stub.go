package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Ensure StubCollaborator implements ModelCollaborator
var _ driven.ModelCollaborator = (*StubCollaborator)(nil)

// stubRule maps instruction phrasings to one find/replace edit. A rule
// fires when the instruction mentions any of its triggers and the document
// actually contains the text to find.
type stubRule struct {
	triggers  []string
	find      string
	replace   string
	reasoning string
}

func (r stubRule) triggered(instruction string) bool {
	for _, trigger := range r.triggers {
		if strings.Contains(instruction, trigger) {
			return true
		}
	}
	return false
}

// stubRules covers the edits exercised by the demo employment agreement,
// so the full pipeline can run end to end without a model credential.
var stubRules = []stubRule{
	{
		triggers:  []string{"acme corporation", "techcorp industries", "company name"},
		find:      "Acme Corporation",
		replace:   "TechCorp Industries",
		reasoning: "Updated company name from Acme Corporation to TechCorp Industries",
	},
	{
		triggers:  []string{"salary", "$150,000", "150,000"},
		find:      "$120,000",
		replace:   "$150,000",
		reasoning: "Updated annual salary from $120,000 to $150,000",
	},
	{
		triggers:  []string{"bonus", "20%"},
		find:      "15%",
		replace:   "20%",
		reasoning: "Updated bonus percentage from 15% to 20%",
	},
	{
		triggers:  []string{"senior software engineer", "principal software architect", "job title"},
		find:      "Senior Software Engineer",
		replace:   "Principal Software Architect",
		reasoning: "Updated job title from Senior Software Engineer to Principal Software Architect",
	},
	{
		triggers:  []string{"john doe", "jane smith", "employee name"},
		find:      "John Doe",
		replace:   "Jane Smith",
		reasoning: "Updated employee name from John Doe to Jane Smith",
	},
}

// stubEdit is one entry of the canonical edits response.
type stubEdit struct {
	OriginalText    string `json:"original_text"`
	ReplacementText string `json:"replacement_text"`
	Reasoning       string `json:"reasoning"`
}

type stubResponse struct {
	Edits []stubEdit `json:"edits"`
}

// StubCollaborator is a deterministic, in-process collaborator built on a
// fixed rule table. It emits the same canonical edits JSON a real model is
// prompted for, so everything downstream of Propose is exercised
// identically with and without a configured provider.
type StubCollaborator struct{}

// NewStubCollaborator creates the deterministic rule-table collaborator.
func NewStubCollaborator() *StubCollaborator {
	return &StubCollaborator{}
}

// Propose matches the instruction against the rule table and returns the
// resulting edits as canonical JSON. Instructions matching no rule, or
// rules whose target text is absent from the document, yield an empty
// edits array rather than an error.
func (s *StubCollaborator) Propose(ctx context.Context, content, instruction string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lowered := strings.ToLower(instruction)
	edits := make([]stubEdit, 0, len(stubRules))
	for _, rule := range stubRules {
		if !rule.triggered(lowered) {
			continue
		}
		if !strings.Contains(content, rule.find) {
			continue
		}
		edits = append(edits, stubEdit{
			OriginalText:    rule.find,
			ReplacementText: rule.replace,
			Reasoning:       rule.reasoning,
		})
	}

	body, err := json.Marshal(stubResponse{Edits: edits})
	if err != nil {
		return "", fmt.Errorf("failed to marshal stub response: %w", err)
	}
	return string(body), nil
}

// Provider returns the stub provider identifier.
func (s *StubCollaborator) Provider() domain.CollaboratorProvider {
	return domain.CollaboratorProviderStub
}

// Model returns the fixed pseudo-model name.
func (s *StubCollaborator) Model() string {
	return "rule-table"
}

// Ping always succeeds; the stub has no external dependency.
func (s *StubCollaborator) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *StubCollaborator) Close() error {
	return nil
}
