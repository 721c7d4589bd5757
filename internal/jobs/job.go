package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the state of a stitching run
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Job is the history record of one stitching run
type Job struct {
	ID          string    `json:"id"`
	ConfigPath  string    `json:"config_path"`
	OutputPath  string    `json:"output_path"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Tasks       int       `json:"tasks"`
	Snippets    int       `json:"snippets"`
	OutputSize  int64     `json:"output_size,omitempty"` // Populated after completion
	Duration    float64   `json:"duration,omitempty"`    // Seconds of rendered video
	RenderTime  int64     `json:"render_secs,omitempty"` // Wall time of the run in seconds
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// New returns a running job for the given job file.
func New(configPath, outputPath string, tasks, snippets int) *Job {
	return &Job{
		ID:         uuid.New().String(),
		ConfigPath: configPath,
		OutputPath: outputPath,
		Status:     StatusRunning,
		Tasks:      tasks,
		Snippets:   snippets,
		CreatedAt:  time.Now(),
	}
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// Complete marks a running job as finished.
func (j *Job) Complete(outputSize int64, duration float64) error {
	if j.Status != StatusRunning {
		return jobNotRunningError(j.ID, j.Status)
	}
	j.Status = StatusComplete
	j.OutputSize = outputSize
	j.Duration = duration
	j.finish()
	return nil
}

// Fail marks a running job as failed with the given cause.
func (j *Job) Fail(cause error) error {
	if j.Status != StatusRunning {
		return jobNotRunningError(j.ID, j.Status)
	}
	j.Status = StatusFailed
	if cause != nil {
		j.Error = cause.Error()
	}
	j.finish()
	return nil
}

func (j *Job) finish() {
	j.CompletedAt = time.Now()
	j.RenderTime = int64(j.CompletedAt.Sub(j.CreatedAt).Seconds())
}
