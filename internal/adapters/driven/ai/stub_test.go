package ai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/suggestions"
)

const stubTestAgreement = "This Employment Agreement is entered into between Acme Corporation " +
	"('Employer') and John Doe ('Employee'). The Employee will serve as Senior Software Engineer " +
	"with an annual salary of $120,000 and an annual bonus of up to 15% of base salary."

func decodeStubResponse(t *testing.T, raw string) []stubEdit {
	t.Helper()
	var resp stubResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("stub response is not valid JSON: %v", err)
	}
	if resp.Edits == nil {
		t.Fatal("expected edits array, got null")
	}
	return resp.Edits
}

func TestStubCollaborator_Identity(t *testing.T) {
	stub := NewStubCollaborator()

	if stub.Provider() != domain.CollaboratorProviderStub {
		t.Errorf("expected stub provider, got %s", stub.Provider())
	}
	if stub.Model() == "" {
		t.Error("expected non-empty model name")
	}
	if err := stub.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
	if err := stub.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestStubCollaborator_Propose_CompanyName(t *testing.T) {
	stub := NewStubCollaborator()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"Change the company name from Acme Corporation to TechCorp Industries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(edits))
	}
	if edits[0].OriginalText != "Acme Corporation" {
		t.Errorf("expected original_text 'Acme Corporation', got %q", edits[0].OriginalText)
	}
	if edits[0].ReplacementText != "TechCorp Industries" {
		t.Errorf("expected replacement_text 'TechCorp Industries', got %q", edits[0].ReplacementText)
	}
	if edits[0].Reasoning == "" {
		t.Error("expected non-empty reasoning")
	}
}

func TestStubCollaborator_Propose_MultipleRules(t *testing.T) {
	stub := NewStubCollaborator()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"Update the salary to $150,000 and the bonus to 20%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(edits))
	}

	found := make(map[string]string)
	for _, edit := range edits {
		found[edit.OriginalText] = edit.ReplacementText
	}
	if found["$120,000"] != "$150,000" {
		t.Errorf("expected salary edit, got %v", found)
	}
	if found["15%"] != "20%" {
		t.Errorf("expected bonus edit, got %v", found)
	}
}

func TestStubCollaborator_Propose_JobTitleAndName(t *testing.T) {
	stub := NewStubCollaborator()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"Promote John Doe to Principal Software Architect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(edits))
	}

	found := make(map[string]string)
	for _, edit := range edits {
		found[edit.OriginalText] = edit.ReplacementText
	}
	if found["Senior Software Engineer"] != "Principal Software Architect" {
		t.Errorf("expected title edit, got %v", found)
	}
	if found["John Doe"] != "Jane Smith" {
		t.Errorf("expected name edit, got %v", found)
	}
}

func TestStubCollaborator_Propose_NoTrigger(t *testing.T) {
	stub := NewStubCollaborator()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"Translate the document into French")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 0 {
		t.Errorf("expected no edits for unmatched instruction, got %d", len(edits))
	}
}

func TestStubCollaborator_Propose_TargetAbsent(t *testing.T) {
	stub := NewStubCollaborator()

	// Instruction matches a rule but the document lacks the target text
	raw, err := stub.Propose(context.Background(), "An unrelated memo about quarterly planning.",
		"Change the company name from Acme Corporation to TechCorp Industries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 0 {
		t.Errorf("expected no edits when target text is absent, got %d", len(edits))
	}
}

func TestStubCollaborator_Propose_CaseInsensitiveInstruction(t *testing.T) {
	stub := NewStubCollaborator()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"CHANGE THE COMPANY NAME PLEASE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edits := decodeStubResponse(t, raw)
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit for uppercased instruction, got %d", len(edits))
	}
}

func TestStubCollaborator_Propose_CancelledContext(t *testing.T) {
	stub := NewStubCollaborator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Propose(ctx, stubTestAgreement, "Change the company name")
	if err == nil {
		t.Error("expected an error after context cancellation")
	}
}

// The stub's output must parse through the same decoder the orchestrator
// uses for real model responses.
func TestStubCollaborator_OutputDecodable(t *testing.T) {
	stub := NewStubCollaborator()
	registry := suggestions.DefaultRegistry()

	raw, err := stub.Propose(context.Background(), stubTestAgreement,
		"Change the company name and update the salary to $150,000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hints, decoderName, ok, err := registry.Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !ok {
		t.Fatal("expected stub output to be recognized by a decoder")
	}
	if decoderName != "edits-object" {
		t.Errorf("expected canonical edits-object decoder, got %s", decoderName)
	}
	if len(hints) != 2 {
		t.Fatalf("expected 2 hints, got %d", len(hints))
	}

	replace, ok := hints[0].(domain.ReplaceHint)
	if !ok {
		t.Fatalf("expected ReplaceHint, got %T", hints[0])
	}
	if replace.Find != "Acme Corporation" || replace.Replace != "TechCorp Industries" {
		t.Errorf("unexpected first hint: %+v", replace)
	}
}
