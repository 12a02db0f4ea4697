package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/hookwarden/internal/alert"
	"github.com/ppiankov/hookwarden/internal/policy"
)

// Environment variables read by ApplyEnv. Load a .env file first with
// godotenv to set them from disk.
const (
	EnvLevel         = "HOOKWARDEN_LEVEL"
	EnvHTTPAddr      = "HOOKWARDEN_HTTP_ADDR"
	EnvGRPCAddr      = "HOOKWARDEN_GRPC_ADDR"
	EnvAuditFile     = "HOOKWARDEN_AUDIT_FILE"
	EnvAuditDB       = "HOOKWARDEN_AUDIT_DB"
	EnvDetectorRules = "HOOKWARDEN_DETECTOR_RULES"
	EnvAlertsEnabled = "HOOKWARDEN_ALERTS_ENABLED"
	EnvWebhookURL    = "HOOKWARDEN_WEBHOOK_URL"
	EnvWebhookFormat = "HOOKWARDEN_WEBHOOK_FORMAT"
	EnvSweepInterval = "HOOKWARDEN_SWEEP_INTERVAL"
	EnvLogLevel      = "HOOKWARDEN_LOG_LEVEL"
	EnvMaxSessions   = "HOOKWARDEN_MAX_SESSIONS"
)

// ApplyEnv overrides fields from HOOKWARDEN_* variables. A webhook URL from
// the environment is added unless the same URL is already configured.
func (c *Config) ApplyEnv() error {
	c.Level = policy.Level(getEnv(EnvLevel, string(c.Level)))
	c.Server.HTTPAddr = getEnv(EnvHTTPAddr, c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv(EnvGRPCAddr, c.Server.GRPCAddr)
	c.Audit.File = getEnv(EnvAuditFile, c.Audit.File)
	c.Audit.DB = getEnv(EnvAuditDB, c.Audit.DB)
	c.Detector.Rules = getEnv(EnvDetectorRules, c.Detector.Rules)
	c.Alerts.Enabled = getEnvBool(EnvAlertsEnabled, c.Alerts.Enabled)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.Session.MaxSessions = getEnvInt(EnvMaxSessions, c.Session.MaxSessions)

	if v, ok := os.LookupEnv(EnvSweepInterval); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSweepInterval, err)
		}
		c.SweepInterval = d
	}

	if url := strings.TrimSpace(os.Getenv(EnvWebhookURL)); url != "" {
		for _, w := range c.Alerts.Webhooks {
			if w.URL == url {
				return nil
			}
		}
		c.Alerts.Webhooks = append(c.Alerts.Webhooks, alert.WebhookConfig{
			URL:    url,
			Format: getEnv(EnvWebhookFormat, alert.FormatGeneric),
		})
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
