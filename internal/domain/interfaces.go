package domain

import (
	"context"
	"time"
)

// ReferenceStore resolves versioned reference packs
type ReferenceStore interface {
	Versions() ([]string, error)
	ActiveVersion(requested string) string
	Lookup(version, ageBand string, sex Sex, metric string) (ReferenceRange, bool)
	Ranges(version string) (map[string]ReferenceRange, error)
	Filter(version, ageBand string, sex Sex) (map[string]ReferenceRange, error)
	Metadata(version string) (map[string]any, error)
}

// AuditLedger appends decision records to the hash-chained ledger
type AuditLedger interface {
	Append(ctx context.Context, userID, action string, payload any) (AuditEvent, error)
}

// ImportJobStore persists import job records
type ImportJobStore interface {
	Save(ctx context.Context, job *ImportJob) error
	Get(ctx context.Context, jobID string) (*ImportJob, error)
	List(ctx context.Context, limit, offset int) ([]*ImportJob, error)
	Count(ctx context.Context) (int, error)
}

// MetricsRecorder records usage counters and durations
type MetricsRecorder interface {
	Increment(name string)
	RecordDuration(name string, d time.Duration)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetNarrativeConfig() *NarrativeConfig
	GetAuditConfig() *AuditConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
