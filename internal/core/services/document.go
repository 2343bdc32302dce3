package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
)

// maxUploadBytes caps uploaded document content at 10 MiB.
const maxUploadBytes = 10 << 20

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// documentService fronts the document and version reads plus upload/delete.
type documentService struct {
	documents driven.DocumentStore
	rows      driven.VersionStore
	versions  *VersionService
	content   driven.ContentStore
	renderer  *TrackedChangeRenderer
	logger    *slog.Logger
}

// DocumentServiceConfig holds dependencies for the document service.
type DocumentServiceConfig struct {
	DocumentStore driven.DocumentStore
	VersionStore  driven.VersionStore
	Versions      *VersionService
	ContentStore  driven.ContentStore
	Renderer      *TrackedChangeRenderer
	Logger        *slog.Logger
}

// NewDocumentService assembles the document service from its config.
func NewDocumentService(cfg DocumentServiceConfig) driving.DocumentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &documentService{
		documents: cfg.DocumentStore,
		rows:      cfg.VersionStore,
		versions:  cfg.Versions,
		content:   cfg.ContentStore,
		renderer:  cfg.Renderer,
		logger:    logger,
	}
}

// Upload creates a document whose normalized content becomes version 1
func (s *documentService) Upload(ctx context.Context, req driving.UploadDocumentRequest) (*domain.Document, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	if len(req.Content) > maxUploadBytes {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", domain.ErrInvalidInput, maxUploadBytes)
	}

	doc := domain.NewDocument(name, req.ContentType)
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	snapshot := domain.NewSnapshot(domain.NormalizeContent(req.Content))
	if _, err := s.versions.Append(ctx, doc.ID, 1, snapshot, nil, "", "Initial upload"); err != nil {
		// A document without version 1 is unusable; take the row back out.
		if delErr := s.documents.Delete(ctx, doc.ID); delErr != nil {
			s.logger.Warn("failed to remove document after version 1 append failed",
				"document_id", doc.ID, "error", delErr)
		}
		return nil, err
	}
	doc.LatestVersion = 1

	s.logger.Info("document uploaded",
		"document_id", doc.ID,
		"name", doc.Name,
		"size_bytes", snapshot.Len())

	return doc, nil
}

// Get loads one document by ID
func (s *documentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.documents.Get(ctx, id)
}

// List retrieves documents with pagination
func (s *documentService) List(ctx context.Context, limit, offset int) ([]*domain.Document, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.documents.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.documents.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Delete removes a document, its versions and their stored content
func (s *documentService) Delete(ctx context.Context, id string) error {
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}

	// Rows are gone; orphaned snapshot objects are unreachable either way,
	// so a failed sweep only costs storage.
	removed, err := s.content.DeletePrefix(ctx, driven.DocumentContentPrefix(id))
	if err != nil {
		s.logger.Warn("failed to sweep snapshot objects for deleted document",
			"document_id", id, "error", err)
		return nil
	}

	s.logger.Info("document deleted", "document_id", id, "snapshots_removed", removed)
	return nil
}

// ListVersions retrieves version summaries for a document, newest first
func (s *documentService) ListVersions(ctx context.Context, documentID string, limit, offset int) ([]*domain.VersionSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	// Resolve the document first so a bad ID reads as not-found rather
	// than an empty history.
	if _, err := s.documents.Get(ctx, documentID); err != nil {
		return nil, 0, err
	}

	summaries, err := s.rows.List(ctx, documentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.rows.Count(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// GetVersion retrieves one version's metadata
func (s *documentService) GetVersion(ctx context.Context, documentID string, number int) (*domain.Version, error) {
	return s.rows.Get(ctx, documentID, number)
}

// GetVersionContent retrieves one version's full content, verified against
// its recorded checksum
func (s *documentService) GetVersionContent(ctx context.Context, documentID string, number int) (*domain.Version, domain.Snapshot, error) {
	return s.versions.Snapshot(ctx, documentID, number)
}

// RenderVersion renders a version's changes relative to its predecessor.
// Version 1 has no predecessor and renders as its own content, escaped
// for the html format; clean output is simply the version's own snapshot.
func (s *documentService) RenderVersion(ctx context.Context, documentID string, number int, format driving.RenderFormat) (string, error) {
	if format == "" {
		format = driving.RenderHTML
	}
	if !format.IsValid() {
		return "", fmt.Errorf("%w: unknown render format %q", domain.ErrInvalidInput, format)
	}

	version, err := s.rows.Get(ctx, documentID, number)
	if err != nil {
		return "", err
	}

	if format == driving.RenderClean || version.Patch == nil {
		_, snapshot, err := s.versions.Snapshot(ctx, documentID, number)
		if err != nil {
			return "", err
		}
		// The html renderer escapes retained text, so the no-patch path
		// must escape too or consumers cannot embed both uniformly.
		if format == driving.RenderHTML {
			return html.EscapeString(snapshot.Content()), nil
		}
		return snapshot.Content(), nil
	}

	_, base, err := s.versions.Snapshot(ctx, documentID, number-1)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(base, version.Patch, format)
}
