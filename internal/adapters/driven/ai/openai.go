package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Ensure OpenAICollaborator implements ModelCollaborator
var _ driven.ModelCollaborator = (*OpenAICollaborator)(nil)

const defaultOpenAIModel = "gpt-4o-mini"

// collaboratorSystemPrompt pins the response contract: a JSON object with
// an "edits" array in the canonical shape the suggestion decoders accept.
const collaboratorSystemPrompt = `You are an expert document editor. Your role is to:

1. Carefully analyze documents
2. Generate precise, safe edits based on user instructions
3. Preserve wording and formatting outside the requested change
4. Ensure consistency across the document
5. Only modify what is explicitly requested

CRITICAL RULES:
- Return edits in valid JSON format
- Each edit must specify: original_text, replacement_text, reasoning
- original_text must be an exact excerpt of the document
- Preserve all formatting, capitalization, and punctuation unless explicitly asked to change
- Be conservative - when in doubt, don't edit

Response format:
{
  "edits": [
    {
      "original_text": "<exact original text>",
      "replacement_text": "<new text>",
      "reasoning": "<brief explanation>"
    }
  ]
}`

// OpenAICollaborator implements ModelCollaborator against the OpenAI chat
// completions API (or any compatible endpoint via base URL override).
type OpenAICollaborator struct {
	client      *openai.Client
	httpClient  *http.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICollaborator creates an OpenAI-backed collaborator from
// settings. Temperature, token limit and call timeout are fixed at
// construction; the runtime replaces the whole collaborator when settings
// change.
func NewOpenAICollaborator(cfg domain.CollaboratorSettings) (*OpenAICollaborator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai collaborator needs an api key")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout(),
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAICollaborator{
		client:      openai.NewClientWithConfig(clientConfig),
		httpClient:  httpClient,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Propose asks the model for edits against content. The raw assistant
// message is returned untouched; decoding is the suggestion registry's
// job. Failures come back as *domain.CollaboratorError so the caller's
// retry policy can tell transient faults from permanent ones.
func (c *OpenAICollaborator) Propose(ctx context.Context, content, instruction string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: collaboratorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: collaboratorUserPrompt(content, instruction)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIErr(err)
	}

	if len(resp.Choices) == 0 {
		return "", &domain.CollaboratorError{
			Kind:   domain.CollaboratorBadResponse,
			Detail: "completion returned no choices",
		}
	}

	return resp.Choices[0].Message.Content, nil
}

func collaboratorUserPrompt(content, instruction string) string {
	return fmt.Sprintf("Document:\n%s\n\nInstruction: %s\n\nAnalyze the document and generate precise edits to fulfill the instruction. Return only valid JSON with the edits array.",
		content, instruction)
}

// Provider returns the OpenAI provider identifier.
func (c *OpenAICollaborator) Provider() domain.CollaboratorProvider {
	return domain.CollaboratorProviderOpenAI
}

// Model names the configured model.
func (c *OpenAICollaborator) Model() string {
	return c.model
}

// Ping verifies connectivity and credentials with a models listing, the
// cheapest authenticated call the API offers.
func (c *OpenAICollaborator) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyOpenAIErr(err)
	}
	return nil
}

// Close releases pooled connections.
func (c *OpenAICollaborator) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// classifyOpenAIErr maps API failures to CollaboratorError kinds. Rate
// limits and 5xx responses are transient; auth and request errors are not,
// because retrying an invalid key or malformed request cannot succeed.
func classifyOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.CollaboratorError{
			Kind:   kindForStatus(apiErr.HTTPStatusCode),
			Detail: apiErr.Message,
			Err:    err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.CollaboratorError{
			Kind:   kindForStatus(reqErr.HTTPStatusCode),
			Detail: fmt.Sprintf("request failed with status %d", reqErr.HTTPStatusCode),
			Err:    err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.CollaboratorError{
			Kind:   domain.CollaboratorTimeout,
			Detail: "no response before deadline",
			Err:    err,
		}
	}

	return &domain.CollaboratorError{
		Kind:   domain.CollaboratorUnavailable,
		Detail: err.Error(),
		Err:    err,
	}
}

func kindForStatus(status int) domain.CollaboratorErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.CollaboratorRateLimited
	case status >= 500:
		return domain.CollaboratorUnavailable
	default:
		return domain.CollaboratorBadResponse
	}
}
