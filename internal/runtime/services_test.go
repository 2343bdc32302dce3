package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// mockCollaborator counts closes and fails pings on demand.
type mockCollaborator struct {
	pingErr error
	closed  bool
}

func (m *mockCollaborator) Propose(ctx context.Context, content, instruction string) (string, error) {
	return "", nil
}

func (m *mockCollaborator) Provider() domain.CollaboratorProvider {
	return domain.CollaboratorProviderStub
}

func (m *mockCollaborator) Model() string { return "test-model" }

func (m *mockCollaborator) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockCollaborator) Close() error {
	m.closed = true
	return nil
}

func newTestServices() *Services {
	return NewServices(domain.NewRuntimeConfig("redis", "redis", "filesystem"))
}

func TestServicesStartEmpty(t *testing.T) {
	services := newTestServices()

	if services.Collaborator() != nil {
		t.Error("expected no collaborator before configuration")
	}
	if services.Config().CollaboratorAvailable() {
		t.Error("expected availability flag to start false")
	}
}

func TestServicesSwapCollaborator(t *testing.T) {
	services := newTestServices()
	config := services.Config()

	first := &mockCollaborator{}
	services.SetCollaborator(first)

	if services.Collaborator() != first {
		t.Fatal("expected first collaborator to be live")
	}
	if !config.CollaboratorAvailable() {
		t.Error("expected availability flag after set")
	}
	if config.CollaboratorProvider() != domain.CollaboratorProviderStub {
		t.Errorf("expected stub provider flag, got %s", config.CollaboratorProvider())
	}

	// Replacing closes the incumbent and leaves the newcomer open.
	second := &mockCollaborator{}
	services.SetCollaborator(second)
	if !first.closed {
		t.Error("expected replaced collaborator to be closed")
	}
	if second.closed {
		t.Error("expected new collaborator to remain open")
	}

	// Clearing closes and flips the flags back.
	services.SetCollaborator(nil)
	if !second.closed {
		t.Error("expected cleared collaborator to be closed")
	}
	if services.Collaborator() != nil || config.CollaboratorAvailable() {
		t.Error("expected no collaborator after clearing")
	}
}

func TestServicesValidateBeforeSwap(t *testing.T) {
	services := newTestServices()
	ctx := context.Background()

	t.Run("healthy candidate goes live", func(t *testing.T) {
		mock := &mockCollaborator{}
		if err := services.ValidateAndSetCollaborator(ctx, mock); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if services.Collaborator() != mock {
			t.Error("expected candidate to be swapped in")
		}
	})

	t.Run("failing candidate leaves incumbent live", func(t *testing.T) {
		incumbent := services.Collaborator()

		mock := &mockCollaborator{pingErr: errors.New("connection failed")}
		if err := services.ValidateAndSetCollaborator(ctx, mock); err == nil {
			t.Error("expected ping failure to surface")
		}
		if !mock.closed {
			t.Error("expected rejected candidate to be closed")
		}
		if services.Collaborator() != incumbent {
			t.Error("expected the previous collaborator to stay live")
		}
	})

	t.Run("nil clears without validation", func(t *testing.T) {
		if err := services.ValidateAndSetCollaborator(ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if services.Collaborator() != nil {
			t.Error("expected collaborator to be cleared")
		}
	})
}

func TestServicesClose(t *testing.T) {
	services := newTestServices()

	mock := &mockCollaborator{}
	services.SetCollaborator(mock)

	if err := services.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !mock.closed {
		t.Error("expected collaborator to be closed")
	}
	if services.Collaborator() != nil {
		t.Error("expected registry to be empty after close")
	}
	if services.Config().CollaboratorAvailable() {
		t.Error("expected availability flag to be cleared")
	}
}
