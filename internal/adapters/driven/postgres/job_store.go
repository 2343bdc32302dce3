package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

// JobStore implements driven.JobStore using PostgreSQL.
// Status transitions are persisted with a compare-and-swap on the status
// column, so two workers racing on the same job cannot both win.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, document_id, instruction, status, base_version, patch,
	   result_version, failure_code, failure_message, audit,
	   created_at, generating_at, ready_at, applying_at, finished_at`

// Create inserts a new job in its initial status
func (s *JobStore) Create(ctx context.Context, job *domain.EditJob) error {
	patchJSON, auditJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (id, document_id, instruction, status, base_version, patch,
						  result_version, failure_code, failure_message, audit,
						  created_at, generating_at, ready_at, applying_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	failureCode, failureMessage := failureColumns(job)

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.DocumentID,
		job.Instruction,
		string(job.Status),
		job.BaseVersion,
		patchJSON,
		job.ResultVersion,
		failureCode,
		failureMessage,
		auditJSON,
		job.CreatedAt,
		NullTime(job.GeneratingAt),
		NullTime(job.ReadyAt),
		NullTime(job.ApplyingAt),
		NullTime(job.FinishedAt),
	)
	return err
}

// Get retrieves a job by ID
func (s *JobStore) Get(ctx context.Context, id string) (*domain.EditJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// Update persists the job's current fields guarded by a status check.
// The UPDATE matches on both id and the expected status; zero rows
// affected means either the job vanished or another writer moved it,
// and a follow-up existence check tells the two apart.
func (s *JobStore) Update(ctx context.Context, job *domain.EditJob, expected domain.JobStatus) error {
	patchJSON, auditJSON, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $1, patch = $2, result_version = $3,
			failure_code = $4, failure_message = $5, audit = $6,
			generating_at = $7, ready_at = $8, applying_at = $9, finished_at = $10
		WHERE id = $11 AND status = $12
	`

	failureCode, failureMessage := failureColumns(job)

	result, err := s.db.ExecContext(ctx, query,
		string(job.Status),
		patchJSON,
		job.ResultVersion,
		failureCode,
		failureMessage,
		auditJSON,
		NullTime(job.GeneratingAt),
		NullTime(job.ReadyAt),
		NullTime(job.ApplyingAt),
		NullTime(job.FinishedAt),
		job.ID,
		string(expected),
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, job.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return domain.ErrInvalidTransition
}

// List retrieves jobs matching the filter, newest first
func (s *JobStore) List(ctx context.Context, filter domain.JobFilter) ([]*domain.EditJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	argIndex := 1

	if filter.DocumentID != "" {
		query += fmt.Sprintf(" AND document_id = $%d", argIndex)
		args = append(args, filter.DocumentID)
		argIndex++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(filter.Status))
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// CountByStatus returns job counts grouped by status
func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// ListStale retrieves non-terminal jobs that have sat in one of the given
// statuses longer than olderThan. Staleness is measured from when the job
// entered its current status, falling back to creation time.
func (s *JobStore) ListStale(ctx context.Context, statuses []domain.JobStatus, olderThan time.Duration) ([]*domain.EditJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ANY($1)
		  AND COALESCE(
			  CASE status
				  WHEN 'generating' THEN generating_at
				  WHEN 'patch_ready' THEN ready_at
				  WHEN 'applying' THEN applying_at
			  END,
			  created_at
		  ) < $2
	`

	cutoff := time.Now().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(names), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// PurgeTerminal deletes terminal jobs finished more than olderThan ago
func (s *JobStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('applied', 'rejected', 'failed')
		  AND finished_at IS NOT NULL
		  AND finished_at < $1
	`

	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(rowsAffected), nil
}

// marshalJobBlobs prepares the JSONB columns. A nil patch stays NULL;
// a nil audit trail becomes an empty array rather than JSON null.
func marshalJobBlobs(job *domain.EditJob) (patchJSON, auditJSON []byte, err error) {
	if job.Patch != nil {
		patchJSON, err = json.Marshal(job.Patch)
		if err != nil {
			return nil, nil, err
		}
	}

	audit := job.Audit
	if audit == nil {
		audit = []domain.AuditEntry{}
	}
	auditJSON, err = json.Marshal(audit)
	if err != nil {
		return nil, nil, err
	}

	return patchJSON, auditJSON, nil
}

func failureColumns(job *domain.EditJob) (code, message string) {
	if job.Failure == nil {
		return "", ""
	}
	return job.Failure.Code, job.Failure.Message
}

// scannable covers *sql.Row and *sql.Rows
type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*domain.EditJob, error) {
	var job domain.EditJob
	var patchJSON, auditJSON []byte
	var failureCode, failureMessage string
	var generatingAt, readyAt, applyingAt, finishedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&job.Instruction,
		&job.Status,
		&job.BaseVersion,
		&patchJSON,
		&job.ResultVersion,
		&failureCode,
		&failureMessage,
		&auditJSON,
		&job.CreatedAt,
		&generatingAt,
		&readyAt,
		&applyingAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(patchJSON) > 0 {
		var patch domain.Patch
		if err := json.Unmarshal(patchJSON, &patch); err != nil {
			return nil, err
		}
		job.Patch = &patch
	}

	if len(auditJSON) > 0 {
		if err := json.Unmarshal(auditJSON, &job.Audit); err != nil {
			return nil, err
		}
	}

	if failureCode != "" {
		job.Failure = &domain.JobFailure{Code: failureCode, Message: failureMessage}
	}

	job.GeneratingAt = TimePtr(generatingAt)
	job.ReadyAt = TimePtr(readyAt)
	job.ApplyingAt = TimePtr(applyingAt)
	job.FinishedAt = TimePtr(finishedAt)

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*domain.EditJob, error) {
	var jobs []*domain.EditJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
