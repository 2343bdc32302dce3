package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// scheduleColumns is the scan order shared by every query here.
const scheduleColumns = "id, name, type, interval_ns, enabled, next_run, last_run, last_error"

// SchedulerStore keeps the recurring maintenance schedule in PostgreSQL
// so every replica sees the same cadence and due times.
type SchedulerStore struct {
	db *DB
}

// NewSchedulerStore creates a schedule store over the shared pool.
func NewSchedulerStore(db *DB) *SchedulerStore {
	return &SchedulerStore{db: db}
}

// GetScheduledTask retrieves one schedule by ID.
func (s *SchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	return scanSchedule(row)
}

// ListScheduledTasks returns every schedule, soonest first.
func (s *SchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.listWhere(ctx, `ORDER BY next_run ASC`)
}

// GetDueScheduledTasks returns enabled schedules whose next run has
// passed, soonest first.
func (s *SchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.listWhere(ctx, `WHERE enabled AND next_run <= NOW() ORDER BY next_run ASC`)
}

// SaveScheduledTask inserts or fully replaces a schedule row.
func (s *SchedulerStore) SaveScheduledTask(ctx context.Context, st *domain.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			interval_ns = EXCLUDED.interval_ns,
			enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error
	`,
		st.ID,
		st.Name,
		string(st.Type),
		int64(st.Interval),
		st.Enabled,
		st.NextRun,
		NullTime(st.LastRun),
		st.LastError,
	)
	return err
}

// DeleteScheduledTask removes a schedule.
func (s *SchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	var deleted string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM scheduled_tasks WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

// UpdateLastRun stamps a dispatch attempt: last_run moves to now, the
// next run lands one interval out, and lastError records how the
// dispatch went ("" on success). A single statement, so concurrent
// schedulers cannot interleave a read-modify-write.
func (s *SchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	var updated string
	err := s.db.QueryRowContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = NOW(),
		    next_run = NOW() + make_interval(secs => interval_ns / 1e9),
		    last_error = $2
		WHERE id = $1
		RETURNING id
	`, id, lastError).Scan(&updated)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

func (s *SchedulerStore) listWhere(ctx context.Context, clause string, args ...any) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.ScheduledTask
	for rows.Next() {
		st, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, st)
	}
	return schedules, rows.Err()
}

// scanSchedule reads one row in scheduleColumns order. Works for both
// *sql.Row and *sql.Rows.
func scanSchedule(row interface{ Scan(dest ...any) error }) (*domain.ScheduledTask, error) {
	var st domain.ScheduledTask
	var intervalNs int64
	var lastRun sql.NullTime

	err := row.Scan(&st.ID, &st.Name, &st.Type, &intervalNs, &st.Enabled, &st.NextRun, &lastRun, &st.LastError)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st.Interval = time.Duration(intervalNs)
	st.LastRun = TimePtr(lastRun)
	return &st, nil
}
