package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hookwarden/internal/alert"
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Level != policy.LevelGuard {
		t.Errorf("expected guard, got %s", cfg.Level)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, hash, err := LoadConfigWithHash(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPAddr != DefaultConfig().Server.HTTPAddr {
		t.Errorf("expected default http addr, got %q", cfg.Server.HTTPAddr)
	}
	// sha256 of empty input
	if hash != "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected hash %s", hash)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := writeConfig(t, `
level: shield
session:
  timeout: 30m
audit:
  max_entries: 500
  file: /tmp/audit.jsonl
alerts:
  rate_limit_max: 3
  webhooks:
    - url: https://example.com/hook
      format: slack
      min_severity: high
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level != policy.LevelShield {
		t.Errorf("level = %s", cfg.Level)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("timeout = %s", cfg.Session.Timeout)
	}
	if cfg.Session.MaxSessions != 10000 {
		t.Errorf("max_sessions should keep default, got %d", cfg.Session.MaxSessions)
	}
	if cfg.Audit.MaxEntries != 500 || cfg.Audit.File != "/tmp/audit.jsonl" {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.Audit.EntryTTL != 24*time.Hour {
		t.Errorf("entry_ttl should keep default, got %s", cfg.Audit.EntryTTL)
	}
	if cfg.Alerts.RateLimitMax != 3 || cfg.Alerts.RetryCount != 3 {
		t.Errorf("alerts = %+v", cfg.Alerts)
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].MinSeverity != detect.SeverityHigh {
		t.Errorf("webhooks = %+v", cfg.Alerts.Webhooks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "level: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigHashChangesWithContent(t *testing.T) {
	a := writeConfig(t, "level: watch\n")
	b := writeConfig(t, "level: shield\n")
	_, ha, err := LoadConfigWithHash(a)
	if err != nil {
		t.Fatal(err)
	}
	_, hb, err := LoadConfigWithHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha == hb {
		t.Error("different content must hash differently")
	}
}

func TestLevelOverrides(t *testing.T) {
	path := writeConfig(t, `
levels:
  watch:
    block: [data_leak]
    seed: strict
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Policies()
	if err != nil {
		t.Fatal(err)
	}
	watch := p.For(policy.LevelWatch)
	if !watch.Blocks(detect.CategoryDataLeak) {
		t.Error("watch override should block data_leak")
	}
	if watch.Seed != policy.SeedStrict {
		t.Errorf("seed = %s", watch.Seed)
	}
	if !p.For(policy.LevelGuard).Blocks(detect.CategorySystemPath) {
		t.Error("guard should keep its defaults")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown level", func(c *Config) { c.Level = "loud" }, "invalid_level"},
		{"off blocks", func(c *Config) {
			c.Levels = map[string]policy.LevelPolicy{"off": {Block: []detect.Category{detect.CategoryDataLeak}}}
		}, "levels"},
		{"bad webhook", func(c *Config) {
			c.Alerts.Webhooks = []alert.WebhookConfig{{URL: "ftp://x"}}
		}, "alerts"},
		{"empty http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"zero sweep", func(c *Config) { c.SweepInterval = 0 }, "sweep_interval"},
		{"rate over one", func(c *Config) { c.Anomaly.HighBlockRateThreshold = 1.5 }, "anomaly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateNormalizesLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "Watch"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Level != policy.LevelWatch {
		t.Errorf("level = %q", cfg.Level)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLevel, "shield")
	t.Setenv(EnvHTTPAddr, ":9000")
	t.Setenv(EnvAuditDB, "/var/lib/hookwarden/audit.db")
	t.Setenv(EnvAlertsEnabled, "false")
	t.Setenv(EnvWebhookURL, "https://example.com/hook")
	t.Setenv(EnvWebhookFormat, "pagerduty")
	t.Setenv(EnvSweepInterval, "30s")
	t.Setenv(EnvMaxSessions, "42")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Level != policy.LevelShield {
		t.Errorf("level = %s", cfg.Level)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("http addr = %s", cfg.Server.HTTPAddr)
	}
	if cfg.Audit.DB != "/var/lib/hookwarden/audit.db" {
		t.Errorf("audit db = %s", cfg.Audit.DB)
	}
	if cfg.Alerts.Enabled {
		t.Error("alerts should be disabled")
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].Format != alert.FormatPagerDuty {
		t.Errorf("webhooks = %+v", cfg.Alerts.Webhooks)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("sweep = %s", cfg.SweepInterval)
	}
	if cfg.Session.MaxSessions != 42 {
		t.Errorf("max sessions = %d", cfg.Session.MaxSessions)
	}

	// Applying twice must not duplicate the webhook.
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Alerts.Webhooks) != 1 {
		t.Errorf("webhook duplicated: %d", len(cfg.Alerts.Webhooks))
	}
}

func TestApplyEnvBadDuration(t *testing.T) {
	t.Setenv(EnvSweepInterval, "often")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadAppliesEnvAndValidates(t *testing.T) {
	path := writeConfig(t, "level: watch\n")
	t.Setenv(EnvLevel, "nonsense")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDefaultConfigYAMLMatchesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), cfg); err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("template invalid: %v", err)
	}

	def := DefaultConfig()
	if cfg.Level != def.Level || cfg.SweepInterval != def.SweepInterval {
		t.Error("template level or sweep differs from defaults")
	}
	if cfg.Session != def.Session || cfg.Anomaly != def.Anomaly {
		t.Errorf("template session/anomaly differ: %+v %+v", cfg.Session, cfg.Anomaly)
	}
	if cfg.Server != def.Server {
		t.Errorf("template server differs: %+v", cfg.Server)
	}
	if cfg.Audit.Config != def.Audit.Config {
		t.Errorf("template audit differs: %+v", cfg.Audit)
	}
}
