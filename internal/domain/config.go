package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	References  ReferenceConfig `mapstructure:"references"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Narrative   NarrativeConfig `mapstructure:"narrative"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Jobs        JobsConfig      `mapstructure:"jobs"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// ReferenceConfig locates versioned reference packs on disk
type ReferenceConfig struct {
	BasePath        string `mapstructure:"base_path"`
	Version         string `mapstructure:"version"`
	FallbackVersion string `mapstructure:"fallback_version"`
	CacheSize       int    `mapstructure:"cache_size"`
}

// AuditConfig represents ledger configuration
type AuditConfig struct {
	Path           string `mapstructure:"path"`
	PayloadLogPath string `mapstructure:"payload_log_path"`
	QueueSize      int    `mapstructure:"queue_size"`
	Fsync          bool   `mapstructure:"fsync"`
}

// NarrativeConfig represents external text generator configuration
type NarrativeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// CacheConfig represents Redis cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// JobsConfig selects the import-job store backend
type JobsConfig struct {
	Backend        string `mapstructure:"backend"` // "sqlite", "postgres", "memory"
	SQLitePath     string `mapstructure:"sqlite_path"`
	PostgresURL    string `mapstructure:"postgres_url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// AuthConfig maps static access tokens to roles
type AuthConfig struct {
	AdminToken     string `mapstructure:"admin_token"`
	ClinicianToken string `mapstructure:"clinician_token"`
	ObserverToken  string `mapstructure:"observer_token"`
}

// RateLimitConfig represents per-token API rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
