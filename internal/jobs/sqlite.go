package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Fixed-width UTC layout so created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite job store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the import job table and index.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS import_jobs (
		job_id TEXT PRIMARY KEY,
		format TEXT NOT NULL,
		status TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_import_jobs_created_at ON import_jobs(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

func scanSQLiteJob(s scanner) (*domain.ImportJob, error) {
	job := &domain.ImportJob{}
	var format, status, errs, created string

	if err := s.Scan(&job.JobID, &format, &status, &job.Rows, &errs, &created); err != nil {
		return nil, err
	}

	decoded, err := decodeErrors([]byte(errs))
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	job.Format = domain.ImportFormat(format)
	job.Status = domain.ImportStatus(status)
	job.Errors = decoded
	job.CreatedAt = createdAt
	return job, nil
}

// Save inserts or replaces an import job.
func (s *SQLiteStore) Save(ctx context.Context, job *domain.ImportJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	errs, err := encodeErrors(job.Errors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (job_id, format, status, row_count, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			format = excluded.format,
			status = excluded.status,
			row_count = excluded.row_count,
			errors = excluded.errors
	`,
		job.JobID,
		string(job.Format),
		string(job.Status),
		job.Rows,
		errs,
		job.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save import job: %w", err)
	}
	return nil
}

// Get retrieves an import job by ID.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, format, status, row_count, errors, created_at
		FROM import_jobs
		WHERE job_id = ?
	`, jobID)

	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return job, nil
}

// List returns import jobs newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.ImportJob, error) {
	limit, offset = normalizePage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, format, status, row_count, errors, created_at
		FROM import_jobs
		ORDER BY created_at DESC, job_id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []*domain.ImportJob{}
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// Count returns the total number of import jobs.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_jobs").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
