package jobs

import (
	"github.com/gwlsn/stitchray/internal/logger"
)

// Store is where job records are persisted.
type Store interface {
	SaveJob(job *Job) error
}

// History records runs to a Store. Persistence failures are logged and
// never fail the run itself.
type History struct {
	store Store
}

// NewHistory creates a History. A nil store records nothing.
func NewHistory(store Store) *History {
	return &History{store: store}
}

// Start creates and persists a running job.
func (h *History) Start(configPath, outputPath string, tasks, snippets int) *Job {
	job := New(configPath, outputPath, tasks, snippets)
	h.persist(job)
	return job
}

// Finish marks job complete, or failed when runErr is non-nil, and persists it.
func (h *History) Finish(job *Job, outputSize int64, duration float64, runErr error) {
	var err error
	if runErr != nil {
		err = job.Fail(runErr)
	} else {
		err = job.Complete(outputSize, duration)
	}
	if err != nil {
		logger.Warn("Job already finished", "job_id", job.ID, "error", err)
		return
	}
	h.persist(job)
}

// persist saves a job to the store (if configured).
func (h *History) persist(job *Job) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveJob(job); err != nil {
		logger.Warn("Failed to persist job", "job_id", job.ID, "error", err)
	}
}
