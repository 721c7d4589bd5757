package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gwlsn/stitchray/internal/jobs"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	config_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	tasks INTEGER NOT NULL DEFAULT 0,
	snippets INTEGER NOT NULL DEFAULT 0,
	output_size INTEGER,
	duration REAL,
	render_secs INTEGER,
	created_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const jobColumns = `id, config_path, output_path, status, error, tasks, snippets,
	output_size, duration, render_secs, created_at, completed_at`

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	// Check/set schema version
	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("history database %s has schema version %d, this build supports %d", dbPath, version, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// SaveJob persists a job using INSERT OR REPLACE.
func (s *SQLiteStore) SaveJob(job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ConfigPath, job.OutputPath, string(job.Status), nullString(job.Error),
		job.Tasks, job.Snippets,
		nullInt64(job.OutputSize), nullFloat64(job.Duration), nullInt64(job.RenderTime),
		formatTime(job.CreatedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.NotFoundError(id)
	}
	return job, err
}

// ListJobs returns the most recent jobs, newest first.
func (s *SQLiteStore) ListJobs(limit int) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobList []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobList = append(jobList, job)
	}
	return jobList, rows.Err()
}

// FailInterrupted marks all running jobs as failed.
func (s *SQLiteStore) FailInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE jobs
		SET status = 'failed', error = 'interrupted', completed_at = ?
		WHERE status = 'running'
	`, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}

// Stats returns job counts and the total size of completed outputs.
func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	row := s.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0) as running,
			COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0) as complete,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN status = 'complete' THEN output_size ELSE 0 END), 0) as total_output
		FROM jobs
	`)
	err := row.Scan(&stats.Total, &stats.Running, &stats.Complete, &stats.Failed, &stats.TotalOutput)
	return stats, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var errStr, completedAt sql.NullString
	var outputSize, renderTime sql.NullInt64
	var duration sql.NullFloat64
	var status, createdAt string

	err := row.Scan(
		&job.ID, &job.ConfigPath, &job.OutputPath, &status, &errStr,
		&job.Tasks, &job.Snippets,
		&outputSize, &duration, &renderTime,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.Status(status)
	job.Error = errStr.String
	job.OutputSize = outputSize.Int64
	job.Duration = duration.Float64
	job.RenderTime = renderTime.Int64
	job.CreatedAt = parseTime(createdAt)
	job.CompletedAt = parseTime(completedAt.String)

	return &job, nil
}

// Helper functions for SQL values

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullFloat64(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
