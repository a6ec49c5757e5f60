package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "content/references", cfg.RefBasePath)
	assert.Equal(t, 16, cfg.RefCacheSize)
	assert.Equal(t, 20*time.Second, cfg.NarrativeTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.OpenAIAPIKey)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Empty(t, cfg.RefVersion)
	assert.False(t, cfg.Narrative().Enabled)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("ECG_DATA_DIR", "/tmp/test-ecg")
	t.Setenv("ECG_REF_BASE_PATH", "/srv/refs")
	t.Setenv("ECG_REF_VERSION", "1.1.0")
	t.Setenv("ECG_REF_CACHE_SIZE", "4")
	t.Setenv("ECG_AUDIT_PATH", "/var/log/ecg/audit.jsonl")
	t.Setenv("ECG_AUDIT_PAYLOAD_PATH", "/var/log/ecg/payloads.jsonl")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "test-model")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("ECG_NARRATIVE_TIMEOUT", "5s")
	t.Setenv("ECG_LOG_LEVEL", "debug")
	t.Setenv("ECG_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-ecg", cfg.DataDir)
	assert.Equal(t, "/srv/refs", cfg.RefBasePath)
	assert.Equal(t, "1.1.0", cfg.RefVersion)
	assert.Equal(t, 4, cfg.RefCacheSize)
	assert.Equal(t, "/var/log/ecg/audit.jsonl", cfg.LedgerPath())
	assert.Equal(t, "/var/log/ecg/payloads.jsonl", cfg.PayloadLogPath())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)

	narrative := cfg.Narrative()
	assert.True(t, narrative.Enabled)
	assert.Equal(t, "sk-test", narrative.APIKey)
	assert.Equal(t, "test-model", narrative.Model)
	assert.Equal(t, "http://localhost:9999/v1", narrative.BaseURL)
	assert.Equal(t, 5*time.Second, narrative.Timeout)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.ecg-guardrail"}

	assert.Equal(t, "/home/user/.ecg-guardrail/audit.jsonl", cfg.LedgerPath())
	assert.Equal(t, "/home/user/.ecg-guardrail/audit.payloads.jsonl", cfg.PayloadLogPath())

	cfg.AuditPath = "/var/lib/ecg/ledger.jsonl"
	assert.Equal(t, "/var/lib/ecg/ledger.jsonl", cfg.LedgerPath())
	assert.Equal(t, "/var/lib/ecg/ledger.payloads.jsonl", cfg.PayloadLogPath())
	assert.Equal(t, "stderr", cfg.Logging().Output)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "ecg")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"ECG_DATA_DIR",
		"ECG_REF_BASE_PATH",
		"ECG_REF_VERSION",
		"ECG_REF_CACHE_SIZE",
		"ECG_AUDIT_PATH",
		"ECG_AUDIT_PAYLOAD_PATH",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"OPENAI_BASE_URL",
		"ECG_NARRATIVE_TIMEOUT",
		"ECG_LOG_LEVEL",
		"ECG_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
