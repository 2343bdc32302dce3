package domain

import "time"

// ScheduledTask is one recurring maintenance entry: enqueue a task of
// Type every Interval. Rows live in the scheduler store so cadence
// changes survive restarts and are shared across replicas.
type ScheduledTask struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type TaskType `json:"type"`

	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`

	// LastRun and LastError describe the most recent dispatch attempt.
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`

	NextRun time.Time `json:"next_run"`
}

// NewScheduledTask builds an enabled schedule whose first run is one
// interval out.
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue reports whether the schedule should fire now.
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun stamps a finished dispatch and advances the clock by
// one interval.
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// DefaultSchedules lists the maintenance sweeps every deployment gets:
// a daily purge of terminal jobs past retention and a five-minute
// reaper for jobs whose worker died mid-generation.
func DefaultSchedules() []*ScheduledTask {
	return []*ScheduledTask{
		NewScheduledTask("purge-jobs", "Purge Old Jobs", TaskTypePurgeJobs, 24*time.Hour),
		NewScheduledTask("reap-stale-jobs", "Reap Stale Jobs", TaskTypeReapStaleJobs, 5*time.Minute),
	}
}
