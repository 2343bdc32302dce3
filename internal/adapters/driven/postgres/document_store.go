package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// documentColumns is the scan order shared by every query here.
const documentColumns = "id, name, content_type, latest_version, created_at, updated_at"

// DocumentStore keeps document metadata in PostgreSQL. Content bytes
// live in the content store; version rows in the versions table.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a metadata store over the shared pool.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create inserts a new document row at its initial head version.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		doc.ID,
		doc.Name,
		doc.ContentType,
		doc.LatestVersion,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// Get loads one document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// List pages through documents, oldest first.
func (s *DocumentStore) List(ctx context.Context, limit, offset int) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count reports how many documents exist
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Delete deletes a document. Version rows and jobs go with it via
// ON DELETE CASCADE; content snapshots are the content store's problem.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	var deleted string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM documents WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if err == sql.ErrNoRows {
		return domain.ErrDocumentNotFound
	}
	return err
}

// scanDocument reads one row in documentColumns order.
func scanDocument(row interface{ Scan(dest ...any) error }) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.ContentType,
		&doc.LatestVersion,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
