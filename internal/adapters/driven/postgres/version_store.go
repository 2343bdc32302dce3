package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VersionStore = (*VersionStore)(nil)

// VersionStore implements driven.VersionStore using PostgreSQL.
// The version ledger is append-only: rows are inserted, never updated,
// and only document deletion removes them (via cascade).
type VersionStore struct {
	db *DB
}

// NewVersionStore creates a new VersionStore
func NewVersionStore(db *DB) *VersionStore {
	return &VersionStore{db: db}
}

// Append inserts a version row and advances the document head in one
// transaction. The document row is locked first, so two concurrent
// appends serialize and the loser fails the head check instead of
// writing a duplicate or gapped number.
func (s *VersionStore) Append(ctx context.Context, v *domain.Version) error {
	var patchJSON []byte
	if v.Patch != nil {
		data, err := json.Marshal(v.Patch)
		if err != nil {
			return err
		}
		patchJSON = data
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var head int
		err := tx.QueryRowContext(ctx,
			`SELECT latest_version FROM documents WHERE id = $1 FOR UPDATE`,
			v.DocumentID,
		).Scan(&head)
		if err == sql.ErrNoRows {
			return domain.ErrDocumentNotFound
		}
		if err != nil {
			return err
		}

		if v.Number != head+1 {
			return domain.NewValidationError(domain.ValidationVersionMismatch,
				"version %d is not the current head plus one (head: %d)", v.Number, head)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO versions (document_id, number, checksum, description, patch, created_by_job_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			v.DocumentID,
			v.Number,
			v.Checksum,
			v.Description,
			patchJSON,
			v.CreatedByJobID,
			v.CreatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET latest_version = $1, updated_at = $2 WHERE id = $3`,
			v.Number, v.CreatedAt, v.DocumentID,
		)
		return err
	})
}

// Get retrieves a single version of a document
func (s *VersionStore) Get(ctx context.Context, documentID string, number int) (*domain.Version, error) {
	query := `
		SELECT document_id, number, checksum, description, patch, created_by_job_id, created_at
		FROM versions
		WHERE document_id = $1 AND number = $2
	`

	return scanVersion(s.db.QueryRowContext(ctx, query, documentID, number))
}

// Latest retrieves the highest-numbered version of a document
func (s *VersionStore) Latest(ctx context.Context, documentID string) (*domain.Version, error) {
	query := `
		SELECT document_id, number, checksum, description, patch, created_by_job_id, created_at
		FROM versions
		WHERE document_id = $1
		ORDER BY number DESC
		LIMIT 1
	`

	return scanVersion(s.db.QueryRowContext(ctx, query, documentID))
}

func scanVersion(row *sql.Row) (*domain.Version, error) {
	var v domain.Version
	var patchJSON []byte

	err := row.Scan(
		&v.DocumentID,
		&v.Number,
		&v.Checksum,
		&v.Description,
		&patchJSON,
		&v.CreatedByJobID,
		&v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(patchJSON) > 0 {
		var patch domain.Patch
		if err := json.Unmarshal(patchJSON, &patch); err != nil {
			return nil, err
		}
		v.Patch = &patch
	}

	return &v, nil
}

// List retrieves version summaries for a document, newest first.
// The patch body stays in the database; listings only report whether
// one exists.
func (s *VersionStore) List(ctx context.Context, documentID string, limit, offset int) ([]*domain.VersionSummary, error) {
	query := `
		SELECT document_id, number, checksum, description, patch IS NOT NULL, created_at
		FROM versions
		WHERE document_id = $1
		ORDER BY number DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, documentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.VersionSummary
	for rows.Next() {
		var summary domain.VersionSummary
		err := rows.Scan(
			&summary.DocumentID,
			&summary.Number,
			&summary.Checksum,
			&summary.Description,
			&summary.HasPatch,
			&summary.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Count returns the number of versions a document has
func (s *VersionStore) Count(ctx context.Context, documentID string) (int, error) {
	query := `SELECT COUNT(*) FROM versions WHERE document_id = $1`
	var count int
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(&count)
	return count, err
}
