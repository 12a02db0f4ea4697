package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// genericPayload is the default webhook body.
type genericPayload struct {
	Type      Type            `json:"type"`
	Severity  detect.Severity `json:"severity"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
}

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, a Alert) ([]byte, error) {
	switch format {
	case FormatSlack:
		return formatSlack(a)
	case FormatPagerDuty:
		return formatPagerDuty(a)
	default:
		return formatGeneric(a)
	}
}

func formatGeneric(a Alert) ([]byte, error) {
	return json.Marshal(genericPayload{
		Type:      a.Type,
		Severity:  a.Severity,
		Message:   a.Message,
		Timestamp: a.Timestamp.UTC().Format(TimestampFormat),
		SessionID: a.SessionID,
	})
}

func formatSlack(a Alert) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", a.Severity)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Time:* %s", a.Timestamp.UTC().Format(TimestampFormat))},
	}
	if a.SessionID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", a.SessionID)})
	}

	payload := map[string]any{
		"text": fmt.Sprintf("hookwarden %s: %s", a.Type, a.Message),
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s hookwarden: %s", severityEmoji(a.Severity), a.Type),
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": a.Message},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(a Alert) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":   fmt.Sprintf("hookwarden %s: %s", a.Type, a.Message),
			"severity":  pagerDutySeverity(a.Severity),
			"source":    "hookwarden",
			"timestamp": a.Timestamp.UTC().Format(TimestampFormat),
			"custom_details": map[string]any{
				"type":       a.Type,
				"severity":   a.Severity,
				"session_id": a.SessionID,
			},
		},
	}
	return json.Marshal(payload)
}

func pagerDutySeverity(s detect.Severity) string {
	switch s {
	case detect.SeverityCritical:
		return "critical"
	case detect.SeverityHigh:
		return "error"
	case detect.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}

func severityEmoji(s detect.Severity) string {
	switch s {
	case detect.SeverityCritical:
		return ":rotating_light:"
	case detect.SeverityHigh:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// label is a short human-readable form of an alert for logs.
func label(a Alert) string {
	return strings.ToUpper(string(a.Severity)) + " " + string(a.Type)
}
