package driving

import (
	"context"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// UploadDocumentRequest carries a new document's name and initial content.
type UploadDocumentRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// RenderFormat selects how a version (or patch preview) is rendered.
type RenderFormat string

const (
	// RenderHTML renders tracked changes as <ins>/<del> markup
	RenderHTML RenderFormat = "html"
	// RenderInline renders tracked changes as [-deleted] / [+inserted] markers
	RenderInline RenderFormat = "inline"
	// RenderClean renders the final text with all changes accepted
	RenderClean RenderFormat = "clean"
)

// IsValid reports whether f is a known render format.
func (f RenderFormat) IsValid() bool {
	switch f {
	case RenderHTML, RenderInline, RenderClean:
		return true
	default:
		return false
	}
}

// DocumentService manages documents and their version history
type DocumentService interface {
	// Upload creates a document whose normalized content becomes version 1
	Upload(ctx context.Context, req UploadDocumentRequest) (*domain.Document, error)

	// Get loads one document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List retrieves documents with pagination
	List(ctx context.Context, limit, offset int) ([]*domain.Document, int, error)

	// Delete removes a document, its versions and their stored content
	Delete(ctx context.Context, id string) error

	// ListVersions retrieves version summaries for a document, newest first
	ListVersions(ctx context.Context, documentID string, limit, offset int) ([]*domain.VersionSummary, int, error)

	// GetVersion retrieves one version's metadata
	GetVersion(ctx context.Context, documentID string, number int) (*domain.Version, error)

	// GetVersionContent retrieves one version's full content, verified
	// against its recorded checksum
	GetVersionContent(ctx context.Context, documentID string, number int) (*domain.Version, domain.Snapshot, error)

	// RenderVersion renders a version's changes relative to its
	// predecessor in the requested format. Version 1 has no predecessor
	// and renders as its plain content.
	RenderVersion(ctx context.Context, documentID string, number int, format RenderFormat) (string, error)
}
