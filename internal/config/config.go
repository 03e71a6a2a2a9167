// Package config handles Miko configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/miko/config.yaml, /etc/miko/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "miko", "config.yaml"))
	}

	paths = append(paths, "/etc/miko/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Miko configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Kimi      KimiConfig      `yaml:"kimi"`
	Session   SessionConfig   `yaml:"session"`
	Mail      MailConfig      `yaml:"mail"`
	ShellExec ShellExecConfig `yaml:"shell_exec"`
	Organizer OrganizerConfig `yaml:"organizer"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the chat server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// KimiConfig defines the Moonshot (OpenAI-compatible) API settings.
type KimiConfig struct {
	BaseURL string `yaml:"base_url"` // Default: https://api.moonshot.cn/v1
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"` // Default: kimi-k2-0711-preview
}

// SessionConfig defines session and memory storage.
type SessionConfig struct {
	// Backend selects the memory persistence layer: "memory" (process
	// lifetime), "file" (single JSON document), or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the JSON file or SQLite database path, depending on Backend.
	Path string `yaml:"path"`
	// MaxHistory bounds per-identity conversation history (default 10).
	MaxHistory int `yaml:"max_history"`
}

// MailConfig defines the mail account used by the gmail_operation tool.
type MailConfig struct {
	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`
	// From is the sender address (e.g., "Miko <miko@example.com>").
	From string `yaml:"from"`
}

// IMAPConfig defines the IMAP connection for reading mail.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// SMTPConfig defines the SMTP connection for sending mail.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// StartTLS upgrades a plain connection (port 587). When false,
	// implicit TLS is used (port 465).
	StartTLS bool `yaml:"starttls"`
}

// ShellExecConfig defines shell execution limits for the file and
// application tools.
type ShellExecConfig struct {
	// WorkingDir sets the default working directory for commands.
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are command patterns to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// DefaultTimeoutSec is the per-command timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// OrganizerConfig tunes the multi-round file organization loop.
type OrganizerConfig struct {
	// MaxRounds bounds the model request/response cycles (default 10).
	MaxRounds int `yaml:"max_rounds"`
}

// MQTTConfig defines the optional event publisher. Events are only
// published when Broker is non-empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g., mqtt://localhost:1883
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"` // Default: miko/events
}

// ToolTimeout returns the per-dispatch timeout derived from the shell
// exec settings.
func (c *Config) ToolTimeout() time.Duration {
	sec := c.ShellExec.DefaultTimeoutSec
	if sec <= 0 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Kimi: KimiConfig{
			BaseURL: "https://api.moonshot.cn/v1",
			Model:   "kimi-k2-0711-preview",
		},
		Session: SessionConfig{
			Backend:    "memory",
			MaxHistory: 10,
		},
		Organizer: OrganizerConfig{MaxRounds: 10},
		MQTT:      MQTTConfig{Topic: "miko/events"},
	}
}
