package alert

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// Payload formats understood by webhooks.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// WebhookConfig defines a webhook alert destination.
type WebhookConfig struct {
	URL    string `yaml:"url"    json:"url"`
	Format string `yaml:"format" json:"format"` // "generic", "slack", "pagerduty"
	// MinSeverity drops alerts below this severity. Empty means low.
	MinSeverity detect.Severity   `yaml:"min_severity"    json:"min_severity,omitempty"`
	Headers     map[string]string `yaml:"headers"         json:"headers,omitempty"`
	// RatePerSecond paces requests to this endpoint. Zero means unpaced.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second,omitempty"`
}

// Validate checks the URL, format and severity.
func (w WebhookConfig) Validate() error {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook url %q must be an absolute http(s) url", w.URL)
	}
	switch w.Format {
	case "", FormatGeneric, FormatSlack, FormatPagerDuty:
	default:
		return fmt.Errorf("webhook %s: unknown format %q", w.URL, w.Format)
	}
	if w.MinSeverity != "" {
		if _, ok := detect.ParseSeverity(string(w.MinSeverity)); !ok {
			return fmt.Errorf("webhook %s: unknown min_severity %q", w.URL, w.MinSeverity)
		}
	}
	if w.RatePerSecond < 0 {
		return fmt.Errorf("webhook %s: rate_per_second must not be negative", w.URL)
	}
	return nil
}

// Config configures a Manager.
type Config struct {
	Enabled  bool            `yaml:"enabled"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// At most RateLimitMax alerts are accepted per RateLimitWindow.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`

	HistorySize int `yaml:"history_size"`

	// RetryCount is the number of retries after the first attempt.
	RetryCount           int           `yaml:"retry_count"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns the stock alert settings with no webhooks.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		RateLimitWindow:      time.Minute,
		RateLimitMax:         10,
		HistorySize:          100,
		RetryCount:           3,
		RetryInitialInterval: 500 * time.Millisecond,
		RequestTimeout:       5 * time.Second,
		Workers:              4,
		QueueSize:            256,
	}
}

// withDefaults fills zero sizing fields. Enabled and Webhooks are kept as
// given; a negative RetryCount means no retries.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = d.RateLimitWindow
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = d.RateLimitMax
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}
