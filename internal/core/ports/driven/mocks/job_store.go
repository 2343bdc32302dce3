package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// MockJobStore is an in-memory mock of JobStore for testing.
// Jobs are stored as copies, so a caller mutating a job after Get does not
// change the stored row until Update succeeds. That makes the guarded
// Update behave like the real compare-and-set against Postgres.
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.EditJob

	// When set, a hook replaces the default behavior of its method.
	CreateFn func(job *domain.EditJob) error
	GetFn    func(id string) (*domain.EditJob, error)
	UpdateFn func(job *domain.EditJob, expected domain.JobStatus) error
}

// NewMockJobStore creates a new MockJobStore
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs: make(map[string]*domain.EditJob),
	}
}

func (m *MockJobStore) Create(ctx context.Context, job *domain.EditJob) error {
	if m.CreateFn != nil {
		return m.CreateFn(job)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return domain.ErrAlreadyExists
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobStore) Get(ctx context.Context, id string) (*domain.EditJob, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *MockJobStore) Update(ctx context.Context, job *domain.EditJob, expected domain.JobStatus) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(job, expected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Status != expected {
		return domain.ErrInvalidTransition
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobStore) List(ctx context.Context, filter domain.JobFilter) ([]*domain.EditJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*domain.EditJob
	for _, job := range m.jobs {
		if filter.DocumentID != "" && job.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt) // newest first
	})

	if filter.Offset >= len(jobs) {
		return []*domain.EditJob{}, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(jobs) {
		end = len(jobs)
	}
	return jobs[filter.Offset:end], nil
}

func (m *MockJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *MockJobStore) ListStale(ctx context.Context, statuses []domain.JobStatus, olderThan time.Duration) ([]*domain.EditJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var stale []*domain.EditJob
	for _, job := range m.jobs {
		for _, status := range statuses {
			if job.Status == status && statusEnteredAt(job).Before(cutoff) {
				stale = append(stale, cloneJob(job))
				break
			}
		}
	}
	return stale, nil
}

func (m *MockJobStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	purged := 0
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged, nil
}

// Reset clears all jobs (useful between tests)
func (m *MockJobStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[string]*domain.EditJob)
}

// Stored returns the stored copy of a job (for test assertions)
func (m *MockJobStore) Stored(id string) *domain.EditJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

// statusEnteredAt picks the timestamp at which the job entered its current
// status, falling back to creation time.
func statusEnteredAt(job *domain.EditJob) time.Time {
	switch job.Status {
	case domain.JobStatusGenerating:
		if job.GeneratingAt != nil {
			return *job.GeneratingAt
		}
	case domain.JobStatusPatchReady:
		if job.ReadyAt != nil {
			return *job.ReadyAt
		}
	case domain.JobStatusApplying:
		if job.ApplyingAt != nil {
			return *job.ApplyingAt
		}
	default:
		if job.Status.Terminal() && job.FinishedAt != nil {
			return *job.FinishedAt
		}
	}
	return job.CreatedAt
}

func cloneJob(job *domain.EditJob) *domain.EditJob {
	out := *job
	if job.Patch != nil {
		out.Patch = clonePatch(job.Patch)
	}
	if job.Failure != nil {
		f := *job.Failure
		out.Failure = &f
	}
	out.Audit = append([]domain.AuditEntry(nil), job.Audit...)
	out.GeneratingAt = cloneTime(job.GeneratingAt)
	out.ReadyAt = cloneTime(job.ReadyAt)
	out.ApplyingAt = cloneTime(job.ApplyingAt)
	out.FinishedAt = cloneTime(job.FinishedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
