// Package config provides configuration management for the guardrail server.
// This file contains the lightweight configuration for the MCP stdio binary.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ecg-guardrail-server/internal/audit"
	"github.com/ecg-guardrail-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It is read from the environment only and needs no config file.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the ledger

	// Reference packs
	RefBasePath  string // Directory holding one subdirectory per pack version
	RefVersion   string // Optional pinned version
	RefCacheSize int    // Maximum parsed packs held in memory
	AuditPath    string // Ledger file; defaults to DataDir/audit.jsonl
	PayloadPath  string // Payload log; defaults to the ledger path with .payloads.jsonl

	// Narrative generator
	OpenAIAPIKey     string        // Optional: enables the external generator
	OpenAIModel      string        // Model name
	OpenAIBaseURL    string        // OpenAI-compatible endpoint
	NarrativeTimeout time.Duration // Per-call timeout

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".ecg-guardrail")

	return &LiteConfig{
		DataDir:          dataDir,
		RefBasePath:      "content/references",
		RefCacheSize:     16,
		OpenAIModel:      "gpt-4o-mini",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		NarrativeTimeout: 20 * time.Second,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("ECG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Reference packs
	if v := os.Getenv("ECG_REF_BASE_PATH"); v != "" {
		cfg.RefBasePath = v
	}
	cfg.RefVersion = os.Getenv("ECG_REF_VERSION")
	if v := os.Getenv("ECG_REF_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RefCacheSize = n
		}
	}

	cfg.AuditPath = os.Getenv("ECG_AUDIT_PATH")
	cfg.PayloadPath = os.Getenv("ECG_AUDIT_PAYLOAD_PATH")

	// Narrative generator
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("ECG_NARRATIVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.NarrativeTimeout = d
		}
	}

	// Logging
	if v := os.Getenv("ECG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ECG_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// LedgerPath returns the path to the audit ledger.
func (c *LiteConfig) LedgerPath() string {
	if c.AuditPath != "" {
		return c.AuditPath
	}
	return filepath.Join(c.DataDir, "audit.jsonl")
}

// PayloadLogPath returns the path to the ledger's payload log.
func (c *LiteConfig) PayloadLogPath() string {
	if c.PayloadPath != "" {
		return c.PayloadPath
	}
	return audit.DefaultPayloadLogPath(c.LedgerPath())
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// Logging returns the logging section for the stdio server. Logs go to
// stderr so stdout stays a clean protocol channel.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// Narrative returns the narrative section derived from the environment.
func (c *LiteConfig) Narrative() domain.NarrativeConfig {
	return domain.NarrativeConfig{
		Enabled:     c.OpenAIAPIKey != "",
		BaseURL:     c.OpenAIBaseURL,
		APIKey:      c.OpenAIAPIKey,
		Model:       c.OpenAIModel,
		Temperature: 0.2,
		Timeout:     c.NarrativeTimeout,
		RateLimit:   2,
		Burst:       1,
	}
}
