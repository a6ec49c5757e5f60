// Package jobs persists import job records. SQLite is the default backend,
// PostgreSQL serves shared deployments and the memory backend serves tests
// and the stdio tool server.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/database"
	"github.com/ecg-guardrail-server/internal/domain"
)

// Store persists import jobs
type Store interface {
	domain.ImportJobStore
	Close() error
}

// Backend names accepted by New.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// New opens the configured backend. The PostgreSQL schema is migrated first.
func New(ctx context.Context, config domain.JobsConfig, logger *logrus.Logger) (Store, error) {
	switch strings.ToLower(config.Backend) {
	case "", BackendSQLite:
		return NewSQLiteStore(config.SQLitePath)
	case BackendPostgres:
		if err := database.Migrate(ctx, config.PostgresURL, config.MigrationsPath, logger); err != nil {
			return nil, fmt.Errorf("failed to migrate import job schema: %w", err)
		}
		db, err := database.Open(ctx, config.PostgresURL, database.DefaultPoolConfig(), logger)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db.DB)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown jobs backend %q", config.Backend)
	}
}

// NewJob builds a job record for an import result. A job with no parsed
// rows and at least one error is FAILED.
func NewJob(format domain.ImportFormat, result domain.ImportResult) *domain.ImportJob {
	status := domain.ImportCompleted
	if len(result.Readings) == 0 && len(result.Errors) > 0 {
		status = domain.ImportFailed
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}

	return &domain.ImportJob{
		JobID:     uuid.New().String(),
		Format:    format,
		Status:    status,
		Rows:      len(result.Readings),
		Errors:    errs,
		CreatedAt: time.Now().UTC(),
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode job errors: %w", err)
	}
	return string(data), nil
}

func decodeErrors(data []byte) ([]string, error) {
	errs := []string{}
	if len(data) == 0 {
		return errs, nil
	}
	if err := json.Unmarshal(data, &errs); err != nil {
		return nil, fmt.Errorf("failed to decode job errors: %w", err)
	}
	return errs, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*domain.ImportJob, error) {
	job := &domain.ImportJob{}
	var format, status string
	var errs []byte

	if err := s.Scan(&job.JobID, &format, &status, &job.Rows, &errs, &job.CreatedAt); err != nil {
		return nil, err
	}

	decoded, err := decodeErrors(errs)
	if err != nil {
		return nil, err
	}

	job.Format = domain.ImportFormat(format)
	job.Status = domain.ImportStatus(status)
	job.Errors = decoded
	job.CreatedAt = job.CreatedAt.UTC()
	return job, nil
}
