package store

import (
	"github.com/gwlsn/stitchray/internal/jobs"
)

// Store defines the persistence interface for run history.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveJob persists a job. If the job already exists (by ID), it is updated.
	SaveJob(job *jobs.Job) error

	// GetJob retrieves a job by ID. Returns an error wrapping
	// jobs.ErrJobNotFound if there is none.
	GetJob(id string) (*jobs.Job, error)

	// ListJobs returns the most recent jobs, newest first.
	// A limit of 0 or less returns every job.
	ListJobs(limit int) ([]*jobs.Job, error)

	// FailInterrupted marks jobs still "running" as failed. A run that is
	// killed before it can record its outcome leaves such a job behind.
	// Returns the number of jobs updated.
	FailInterrupted() (int, error)

	// Stats returns history statistics.
	Stats() (Stats, error)

	// Close closes the store and releases resources.
	Close() error
}

// Stats holds history statistics.
type Stats struct {
	Total       int   `json:"total"`
	Running     int   `json:"running"`
	Complete    int   `json:"complete"`
	Failed      int   `json:"failed"`
	TotalOutput int64 `json:"total_output"` // Bytes written by completed runs
}
