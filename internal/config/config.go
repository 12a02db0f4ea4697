// Package config loads hookwarden configuration from YAML with environment
// overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hookwarden/internal/alert"
	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/session"
)

// DetectorConfig selects the content detector.
type DetectorConfig struct {
	// Rules is a YAML rule file. Empty uses the built-in rules.
	Rules string `yaml:"rules"`
}

// ToolsConfig lists tools that bypass or always fail tool validation.
type ToolsConfig struct {
	Trusted   []string `yaml:"trusted"`
	Dangerous []string `yaml:"dangerous"`
}

// EscapeConfig seeds the escape hatches at startup.
type EscapeConfig struct {
	// GlobalTrust names tools or patterns trusted for every session.
	GlobalTrust []string `yaml:"global_trust"`
}

// AuditConfig bounds the in-memory trail and selects persistent sinks.
type AuditConfig struct {
	audit.Config `yaml:",inline"`
	// File is a hash-chained JSONL log. Empty disables it.
	File string `yaml:"file"`
	// DB is a SQLite database. Empty disables it.
	DB string `yaml:"db"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the full hookwarden configuration.
type Config struct {
	Level    policy.Level                  `yaml:"level"`
	Levels   map[string]policy.LevelPolicy `yaml:"levels"`
	Detector DetectorConfig                `yaml:"detector"`
	Tools    ToolsConfig                   `yaml:"tools"`
	Escape   EscapeConfig                  `yaml:"escape"`
	Session  session.Config                `yaml:"session"`
	Anomaly  session.AnomalyConfig         `yaml:"anomaly"`
	Audit    AuditConfig                   `yaml:"audit"`
	Alerts   alert.Config                  `yaml:"alerts"`
	Server   ServerConfig                  `yaml:"server"`
	// SweepInterval is how often expired escapes, idle sessions and aged
	// audit entries are reclaimed.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	LogLevel      string        `yaml:"log_level"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:    policy.LevelGuard,
		Detector: DetectorConfig{},
		Tools: ToolsConfig{
			Dangerous: []string{"sudo", "shell_exec_root"},
		},
		Session: session.DefaultConfig(),
		Anomaly: session.DefaultAnomalyConfig(),
		Audit: AuditConfig{
			Config: audit.Config{MaxEntries: audit.DefaultMaxEntries, EntryTTL: 24 * time.Hour},
		},
		Alerts: alert.DefaultConfig(),
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:7420",
			GRPCAddr:        "127.0.0.1:7421",
			ShutdownTimeout: 10 * time.Second,
		},
		SweepInterval: time.Minute,
		LogLevel:      "info",
	}
}

// DefaultPath is ~/.hookwarden/config.yaml, or empty if home is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hookwarden", "config.yaml")
}

// LoadConfig reads path over the defaults. Empty path falls back to
// DefaultPath. A missing file returns defaults. Invalid YAML is an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash is LoadConfig plus the SHA-256 of the raw file bytes.
// When no file exists the hash covers empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, hash, nil
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Policies returns the built-in level definitions with the configured
// overrides applied.
func (c *Config) Policies() (policy.Policies, error) {
	return policy.DefaultPolicies().Merge(c.Levels)
}

// Validate checks values that would otherwise fail at startup.
func (c *Config) Validate() error {
	lvl, err := policy.ParseLevel(string(c.Level))
	if err != nil {
		return err
	}
	c.Level = lvl
	if _, err := c.Policies(); err != nil {
		return fmt.Errorf("levels: %w", err)
	}
	for _, w := range c.Alerts.Webhooks {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep_interval must be > 0")
	}
	if c.Session.MaxSessions < 0 {
		return errors.New("session.max_sessions must not be negative")
	}
	if c.Audit.MaxEntries < 0 {
		return errors.New("audit.max_entries must not be negative")
	}
	if c.Audit.EntryTTL < 0 {
		return errors.New("audit.entry_ttl must not be negative")
	}
	if a := c.Anomaly; a.HighThreatRateThreshold > 1 || a.HighBlockRateThreshold > 1 {
		return errors.New("anomaly rate thresholds must be at most 1")
	}
	return nil
}
