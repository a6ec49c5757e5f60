// Package setup registers the MCP stdio server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerKey is the entry name written under mcpServers.
const ServerKey = "ecg-guardrail"

// ClientConfig is the desktop client configuration file. Keys other than
// mcpServers are preserved on save.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options describes the entry to register.
type Options struct {
	ConfigPath  string // client config file; defaults to DefaultClientConfigPath
	BinaryPath  string // mcp-server binary
	DataDir     string // ECG_DATA_DIR for the ledger
	RefBasePath string // ECG_REF_BASE_PATH
}

// DefaultClientConfigPath returns the desktop client's config file location
// for the current OS.
func DefaultClientConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads the client config. A missing file yields an empty
// config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{MCPServers: map[string]ServerEntry{}, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// Save writes the config back, creating the directory when needed.
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal client config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write client config: %w", err)
	}
	return nil
}

// Register adds or replaces the guardrail entry and returns the config
// path that was written.
func Register(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = DefaultClientConfigPath(); err != nil {
			return "", err
		}
	}
	if opts.BinaryPath == "" {
		return "", fmt.Errorf("server binary path is required")
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	entry := ServerEntry{Command: opts.BinaryPath, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env["ECG_DATA_DIR"] = opts.DataDir
	}
	if opts.RefBasePath != "" {
		entry.Env["ECG_REF_BASE_PATH"] = opts.RefBasePath
	}
	cfg.MCPServers[ServerKey] = entry

	return path, cfg.Save(path)
}

// Status reports the registered entry, if any.
type Status struct {
	ConfigPath   string
	Registered   bool
	Entry        ServerEntry
	BinaryExists bool
}

// GetStatus inspects the client config at path (or the default location).
func GetStatus(path string) (*Status, error) {
	if path == "" {
		var err error
		if path, err = DefaultClientConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path}
	if entry, ok := cfg.MCPServers[ServerKey]; ok {
		status.Registered = true
		status.Entry = entry
		_, statErr := os.Stat(entry.Command)
		status.BinaryExists = statErr == nil
	}
	return status, nil
}
