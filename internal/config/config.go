package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithPaths(".", "./config", "/etc/ecg-guardrail/")
}

// NewManagerWithPaths creates a manager that searches the given directories
// for config.yaml.
func NewManagerWithPaths(paths ...string) (*Manager, error) {
	m := &Manager{v: viper.New()}

	m.v.SetConfigName("config")
	m.v.SetConfigType("yaml")
	for _, p := range paths {
		m.v.AddConfigPath(p)
	}

	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set environment variable prefix and enable automatic env binding
	m.v.SetEnvPrefix("ECG_GUARDRAIL")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Audit.PayloadLogPath == "" && config.Audit.Path != "" {
		config.Audit.PayloadLogPath = audit.DefaultPayloadLogPath(config.Audit.Path)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})

	// Reference pack defaults
	v.SetDefault("references.base_path", "content/references")
	v.SetDefault("references.version", "")
	v.SetDefault("references.fallback_version", "1.0.0")
	v.SetDefault("references.cache_size", 16)

	// Audit ledger defaults
	v.SetDefault("audit.path", "audit.jsonl")
	v.SetDefault("audit.payload_log_path", "") // derived from audit.path when empty
	v.SetDefault("audit.queue_size", 64)
	v.SetDefault("audit.fsync", true)

	// Narrative generator defaults
	v.SetDefault("narrative.enabled", true)
	v.SetDefault("narrative.base_url", "https://api.openai.com/v1")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.model", "gpt-4o-mini")
	v.SetDefault("narrative.temperature", 0.2)
	v.SetDefault("narrative.timeout", "20s")
	v.SetDefault("narrative.rate_limit", 2)
	v.SetDefault("narrative.burst", 1)
	v.SetDefault("narrative.cache_ttl", "1h")

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Import job store defaults
	v.SetDefault("jobs.backend", "sqlite")
	v.SetDefault("jobs.sqlite_path", "jobs.db")
	v.SetDefault("jobs.postgres_url", "")
	v.SetDefault("jobs.migrations_path", "migrations")

	// Access token defaults
	v.SetDefault("auth.admin_token", "admin-token")
	v.SetDefault("auth.clinician_token", "clinician-token")
	v.SetDefault("auth.observer_token", "observer-token")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "ecg-guardrail-mcp")
	v.SetDefault("mcp.server_version", "v0.1.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetNarrativeConfig returns narrative generator configuration
func (m *Manager) GetNarrativeConfig() *domain.NarrativeConfig {
	return &m.config.Narrative
}

// GetAuditConfig returns audit ledger configuration
func (m *Manager) GetAuditConfig() *domain.AuditConfig {
	return &m.config.Audit
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.References.BasePath == "" {
		return fmt.Errorf("reference base path is required")
	}
	if config.References.CacheSize <= 0 {
		return fmt.Errorf("reference cache size must be positive: %d", config.References.CacheSize)
	}

	if config.Audit.Path == "" {
		return fmt.Errorf("audit ledger path is required")
	}
	if config.Audit.QueueSize < 0 {
		return fmt.Errorf("invalid audit queue size: %d", config.Audit.QueueSize)
	}

	if config.Narrative.Timeout <= 0 {
		return fmt.Errorf("narrative timeout must be positive")
	}

	switch config.Jobs.Backend {
	case "sqlite":
		if config.Jobs.SQLitePath == "" {
			return fmt.Errorf("jobs sqlite path is required")
		}
	case "postgres":
		if config.Jobs.PostgresURL == "" {
			return fmt.Errorf("jobs postgres url is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid jobs backend: %s", config.Jobs.Backend)
	}

	tokens := map[string]string{}
	for role, token := range map[string]string{
		"admin":     config.Auth.AdminToken,
		"clinician": config.Auth.ClinicianToken,
		"observer":  config.Auth.ObserverToken,
	} {
		if token == "" {
			return fmt.Errorf("%s token is required", role)
		}
		if other, ok := tokens[token]; ok {
			return fmt.Errorf("%s and %s tokens must differ", role, other)
		}
		tokens[token] = role
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
