package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ecg-guardrail-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL job store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save inserts or updates an import job.
func (s *PostgresStore) Save(ctx context.Context, job *domain.ImportJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	errs, err := encodeErrors(job.Errors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO import_jobs (job_id, format, status, row_count, errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			format = EXCLUDED.format,
			status = EXCLUDED.status,
			row_count = EXCLUDED.row_count,
			errors = EXCLUDED.errors
		RETURNING created_at
	`

	var created time.Time
	err = s.db.QueryRowContext(ctx, query,
		job.JobID,
		string(job.Format),
		string(job.Status),
		job.Rows,
		errs,
		job.CreatedAt,
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("failed to save import job: %w", err)
	}

	job.CreatedAt = created.UTC()
	return nil
}

// Get retrieves an import job by ID.
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, format, status, row_count, errors, created_at
		FROM import_jobs
		WHERE job_id = $1
	`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

// List returns import jobs newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.ImportJob, error) {
	limit, offset = normalizePage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, format, status, row_count, errors, created_at
		FROM import_jobs
		ORDER BY created_at DESC, job_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	result := []*domain.ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// Count returns the total number of import jobs.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count import jobs: %w", err)
	}
	return count, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
