package interfaces

import "time"

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
}

// SchedulerService manages cron-based scheduling of pipeline jobs.
// A job whose previous run is still executing is skipped, not queued.
type SchedulerService interface {
	// Start begins executing registered jobs on their schedules
	Start() error

	// Stop halts the scheduler, waiting for in-flight jobs
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// RegisterJob adds a job with a 5-field cron schedule
	RegisterJob(name, schedule, description string, handler func() error) error

	// TriggerJob runs a job immediately in the background
	TriggerJob(name string) error

	// EnableJob enables a disabled job
	EnableJob(name string) error

	// DisableJob removes a job from the schedule without unregistering it
	DisableJob(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*JobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*JobStatus
}
