package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

func openAITestSettings(baseURL string) domain.CollaboratorSettings {
	return domain.CollaboratorSettings{
		Provider:    domain.CollaboratorProviderOpenAI,
		Model:       "gpt-4o-mini",
		APIKey:      "sk-test",
		BaseURL:     baseURL,
		Temperature: 0.3,
		MaxTokens:   2000,
	}
}

func chatCompletionBody(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
	}
}

func assertCollaboratorKind(t *testing.T, err error, kind domain.CollaboratorErrorKind) *domain.CollaboratorError {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var collabErr *domain.CollaboratorError
	if !errors.As(err, &collabErr) {
		t.Fatalf("expected CollaboratorError, got %T: %v", err, err)
	}
	if collabErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s", kind, collabErr.Kind)
	}
	return collabErr
}

func TestNewOpenAICollaborator_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAICollaborator(domain.CollaboratorSettings{
		Provider: domain.CollaboratorProviderOpenAI,
		Model:    "gpt-4o-mini",
	})
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAICollaborator_DefaultModel(t *testing.T) {
	collaborator, err := NewOpenAICollaborator(domain.CollaboratorSettings{
		Provider: domain.CollaboratorProviderOpenAI,
		APIKey:   "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if collaborator.Model() != defaultOpenAIModel {
		t.Errorf("expected default model %s, got %s", defaultOpenAIModel, collaborator.Model())
	}
}

func TestOpenAICollaborator_Provider(t *testing.T) {
	collaborator, err := NewOpenAICollaborator(openAITestSettings(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if collaborator.Provider() != domain.CollaboratorProviderOpenAI {
		t.Errorf("expected provider openai, got %s", collaborator.Provider())
	}
}

func TestOpenAICollaborator_Close(t *testing.T) {
	collaborator, err := NewOpenAICollaborator(openAITestSettings(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := collaborator.Close(); err != nil {
		t.Errorf("expected no error from Close, got %v", err)
	}
}

func TestOpenAICollaborator_Propose_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Inspect what the client sent
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected Authorization header")
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected model gpt-4o-mini, got %s", req.Model)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Error("expected json_object response format")
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("expected system message first, got %s", req.Messages[0].Role)
		}
		if !strings.Contains(req.Messages[1].Content, "Acme Corporation is the employer.") {
			t.Error("expected user message to carry the document")
		}
		if !strings.Contains(req.Messages[1].Content, "Change the company name") {
			t.Error("expected user message to carry the instruction")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody(`{"edits":[{"original_text":"Acme Corporation","replacement_text":"TechCorp Industries","reasoning":"requested"}]}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := collaborator.Propose(context.Background(), "Acme Corporation is the employer.", "Change the company name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(raw, "TechCorp Industries") {
		t.Errorf("expected raw model output to round-trip, got %q", raw)
	}
}

func TestOpenAICollaborator_Propose_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorRateLimited)
	if !collabErr.Transient() {
		t.Error("expected rate limit to be transient")
	}
}

func TestOpenAICollaborator_Propose_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"The server had an error","type":"server_error"}}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorUnavailable)
	if !collabErr.Transient() {
		t.Error("expected server error to be transient")
	}
}

func TestOpenAICollaborator_Propose_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorBadResponse)
	if collabErr.Transient() {
		t.Error("expected auth error to be permanent")
	}
}

func TestOpenAICollaborator_Propose_MalformedErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	assertCollaboratorKind(t, err, domain.CollaboratorUnavailable)
}

func TestOpenAICollaborator_Propose_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletionBody("")
		resp.Choices = nil
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorBadResponse)
	if collabErr.Transient() {
		t.Error("expected empty completion to be permanent")
	}
}

func TestOpenAICollaborator_Propose_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody(`{"edits":[]}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = collaborator.Propose(ctx, "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorTimeout)
	if !collabErr.Transient() {
		t.Error("expected timeout to be transient")
	}
}

func TestOpenAICollaborator_Propose_NetworkError(t *testing.T) {
	// Unreachable endpoint
	collaborator, err := NewOpenAICollaborator(openAITestSettings("http://127.0.0.1:1/v1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = collaborator.Propose(context.Background(), "content", "instruction")
	collabErr := assertCollaboratorKind(t, err, domain.CollaboratorUnavailable)
	if !collabErr.Transient() {
		t.Error("expected network error to be transient")
	}
}

func TestOpenAICollaborator_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("expected /models, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ModelsList{Models: []openai.Model{{ID: "gpt-4o-mini"}}})
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := collaborator.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}

func TestOpenAICollaborator_Ping_BadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	collaborator, err := NewOpenAICollaborator(openAITestSettings(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = collaborator.Ping(context.Background())
	assertCollaboratorKind(t, err, domain.CollaboratorBadResponse)
}
