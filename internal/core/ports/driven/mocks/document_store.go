package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockDocumentStore is an in-memory mock of DocumentStore for testing
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document

	// When set, a hook replaces the default behavior of its method.
	CreateFn func(doc *domain.Document) error
	GetFn    func(id string) (*domain.Document, error)
	DeleteFn func(id string) error
}

// NewMockDocumentStore creates an empty in-memory document store
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents: make(map[string]*domain.Document),
	}
}

func (m *MockDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if m.CreateFn != nil {
		return m.CreateFn(doc)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[doc.ID]; exists {
		return domain.ErrAlreadyExists
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *MockDocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*domain.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})

	if offset >= len(docs) {
		return []*domain.Document{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end], nil
}

func (m *MockDocumentStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents), nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(m.documents, id)
	return nil
}

// Reset clears all documents (useful between tests)
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[string]*domain.Document)
}

// MockVersionStore is an in-memory mock of VersionStore for testing.
// It enforces the same invariant as the real store: appended numbers must
// be dense, and a stale append fails with a version-mismatch error.
type MockVersionStore struct {
	mu       sync.RWMutex
	versions map[string][]*domain.Version // documentID -> versions ordered by number

	// Docs, when set, has its document head advanced on successful appends,
	// mirroring the transactional update the Postgres store performs.
	Docs *MockDocumentStore

	// When set, a hook replaces the default behavior of its method.
	AppendFn func(v *domain.Version) error
}

// NewMockVersionStore creates a new MockVersionStore
func NewMockVersionStore() *MockVersionStore {
	return &MockVersionStore{
		versions: make(map[string][]*domain.Version),
	}
}

func (m *MockVersionStore) Append(ctx context.Context, v *domain.Version) error {
	if m.AppendFn != nil {
		return m.AppendFn(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.versions[v.DocumentID]
	if v.Number != len(existing)+1 {
		return domain.NewValidationError(domain.ValidationVersionMismatch,
			"version %d is not the current head plus one (head: %d)", v.Number, len(existing))
	}
	m.versions[v.DocumentID] = append(existing, cloneVersion(v))

	if m.Docs != nil {
		m.Docs.mu.Lock()
		if doc, ok := m.Docs.documents[v.DocumentID]; ok {
			doc.LatestVersion = v.Number
			doc.UpdatedAt = v.CreatedAt
		}
		m.Docs.mu.Unlock()
	}
	return nil
}

func (m *MockVersionStore) Get(ctx context.Context, documentID string, number int) (*domain.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[documentID]
	if number < 1 || number > len(versions) {
		return nil, domain.ErrVersionNotFound
	}
	return cloneVersion(versions[number-1]), nil
}

func (m *MockVersionStore) Latest(ctx context.Context, documentID string) (*domain.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[documentID]
	if len(versions) == 0 {
		return nil, domain.ErrVersionNotFound
	}
	return cloneVersion(versions[len(versions)-1]), nil
}

func (m *MockVersionStore) List(ctx context.Context, documentID string, limit, offset int) ([]*domain.VersionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[documentID]
	summaries := make([]*domain.VersionSummary, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- { // newest first
		s := versions[i].Summary()
		summaries = append(summaries, &s)
	}

	if offset >= len(summaries) {
		return []*domain.VersionSummary{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(summaries) {
		end = len(summaries)
	}
	return summaries[offset:end], nil
}

func (m *MockVersionStore) Count(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[documentID]), nil
}

// Reset clears all versions (useful between tests)
func (m *MockVersionStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions = make(map[string][]*domain.Version)
}

func cloneVersion(v *domain.Version) *domain.Version {
	out := *v
	if v.Patch != nil {
		out.Patch = clonePatch(v.Patch)
	}
	return &out
}

func clonePatch(p *domain.Patch) *domain.Patch {
	out := *p
	out.Ops = append([]domain.Operation(nil), p.Ops...)
	out.Warnings = append([]string(nil), p.Warnings...)
	return &out
}
