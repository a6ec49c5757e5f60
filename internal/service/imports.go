package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/imports"
	"github.com/ecg-guardrail-server/internal/jobs"
)

// Ledger actions written by the import path.
const (
	ActionImportCSV  = "import_csv"
	ActionImportJSON = "import_json"
)

// ImportService parses reading files and records an import job for each
type ImportService struct {
	logger  *logrus.Logger
	ledger  domain.AuditLedger
	jobs    domain.ImportJobStore
	metrics domain.MetricsRecorder
}

// NewImportService creates a new import service
func NewImportService(
	logger *logrus.Logger,
	ledger domain.AuditLedger,
	jobStore domain.ImportJobStore,
	metrics domain.MetricsRecorder,
) *ImportService {
	return &ImportService{
		logger:  logger,
		ledger:  ledger,
		jobs:    jobStore,
		metrics: metrics,
	}
}

// ImportCSV parses a CSV reading file
func (s *ImportService) ImportCSV(ctx context.Context, caller domain.Caller, r io.Reader) (*domain.ImportResponse, error) {
	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, err
	}
	return s.finish(ctx, caller, domain.FormatCSV, imports.ParseCSV(r))
}

// ImportJSON parses a JSON array of readings
func (s *ImportService) ImportJSON(ctx context.Context, caller domain.Caller, data []byte) (*domain.ImportResponse, error) {
	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, err
	}
	return s.finish(ctx, caller, domain.FormatJSON, imports.ParseJSON(data))
}

func (s *ImportService) finish(ctx context.Context, caller domain.Caller, format domain.ImportFormat, result domain.ImportResult) (*domain.ImportResponse, error) {
	startTime := time.Now()

	job := jobs.NewJob(format, result)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save import job: %w", err)
	}

	action, counter := ActionImportCSV, "imports_csv"
	if format == domain.FormatJSON {
		action, counter = ActionImportJSON, "imports_json"
	}

	payload := map[string]any{
		"job_id": job.JobID,
		"rows":   job.Rows,
		"errors": len(job.Errors),
	}
	if err := recordEvent(ctx, s.ledger, s.logger, caller, action, payload); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Increment(counter)
		s.metrics.RecordDuration("import_ms", time.Since(startTime))
	}

	s.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"format": format,
		"status": job.Status,
		"rows":   job.Rows,
		"errors": len(job.Errors),
	}).Info("Import completed")

	readings := result.Readings
	if readings == nil {
		readings = []domain.Reading{}
	}
	return &domain.ImportResponse{Job: *job, Readings: readings, Errors: job.Errors}, nil
}

// ListJobs returns import jobs newest first along with the total count
func (s *ImportService) ListJobs(ctx context.Context, caller domain.Caller, limit, offset int) ([]*domain.ImportJob, int, error) {
	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, 0, err
	}
	list, err := s.jobs.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import jobs: %w", err)
	}
	total, err := s.jobs.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count import jobs: %w", err)
	}
	return list, total, nil
}

// GetJob returns one import job
func (s *ImportService) GetJob(ctx context.Context, caller domain.Caller, jobID string) (*domain.ImportJob, error) {
	if err := authorize(caller, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, err
	}
	return s.jobs.Get(ctx, jobID)
}
