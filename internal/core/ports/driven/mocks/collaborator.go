package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// ProposeCall records a single Propose invocation for test assertions
type ProposeCall struct {
	Content     string
	Instruction string
}

// MockCollaborator is a scriptable mock of ModelCollaborator for testing
type MockCollaborator struct {
	mu    sync.Mutex
	calls []ProposeCall

	// Response is returned by Propose when ProposeFn is not set
	Response string

	// ProposeFn overrides the default behavior entirely
	ProposeFn func(content, instruction string) (string, error)

	// PingErr, when set, is returned by Ping
	PingErr error

	// ProviderName and ModelName default to stub/"mock" when empty
	ProviderName domain.CollaboratorProvider
	ModelName    string

	closed bool
}

// NewMockCollaborator creates a mock that replies with the given response
func NewMockCollaborator(response string) *MockCollaborator {
	return &MockCollaborator{Response: response}
}

func (m *MockCollaborator) Propose(ctx context.Context, content, instruction string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ProposeCall{Content: content, Instruction: instruction})
	fn := m.ProposeFn
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(content, instruction)
	}
	return m.Response, nil
}

func (m *MockCollaborator) Provider() domain.CollaboratorProvider {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return domain.CollaboratorProviderStub
}

func (m *MockCollaborator) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock"
}

func (m *MockCollaborator) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockCollaborator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns all recorded Propose invocations
func (m *MockCollaborator) Calls() []ProposeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProposeCall(nil), m.calls...)
}

// CallCount returns how many times Propose was invoked
func (m *MockCollaborator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Closed reports whether Close was called
func (m *MockCollaborator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockCollaboratorFactory is a mock of CollaboratorFactory for testing
type MockCollaboratorFactory struct {
	// Collaborator is returned by CreateCollaborator when CreateFn is not set
	Collaborator driven.ModelCollaborator

	// CreateFn overrides the default behavior
	CreateFn func(settings *domain.CollaboratorSettings) (driven.ModelCollaborator, error)
}

func (m *MockCollaboratorFactory) CreateCollaborator(settings *domain.CollaboratorSettings) (driven.ModelCollaborator, error) {
	if m.CreateFn != nil {
		return m.CreateFn(settings)
	}
	return m.Collaborator, nil
}
