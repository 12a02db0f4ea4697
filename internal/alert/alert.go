// Package alert dispatches security alerts to webhooks with rate limiting,
// pacing and retry.
package alert

import (
	"time"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// Type names the kind of alert.
type Type string

const (
	TypeHighThreatInput Type = "high_threat_input"
	TypeActionBlocked   Type = "action_blocked"
	TypePromptInjection Type = "prompt_injection"
	TypeSessionAnomaly  Type = "session_anomaly"
	TypeError           Type = "error"
)

// Alert is an immutable security alert.
type Alert struct {
	Type      Type            `json:"type"`
	Severity  detect.Severity `json:"severity"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
}

// TimestampFormat is the ISO-8601 layout used in webhook payloads.
const TimestampFormat = "2006-01-02T15:04:05.000Z"
