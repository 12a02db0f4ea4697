package audit

import "time"

// Event names what happened.
type Event string

const (
	EventInputAnalysis    Event = "input_analysis"
	EventOutputValidation Event = "output_validation"
	EventToolValidation   Event = "tool_validation"
	EventSeedInjection    Event = "seed_injection"
	EventSessionStart     Event = "session_start"
	EventSessionEnd       Event = "session_end"
	EventEscapeUsed       Event = "escape_used"
	EventError            Event = "error"
)

// Outcome is the decision recorded with an event.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeBlocked Outcome = "blocked"
	OutcomeAlerted Outcome = "alerted"
	OutcomeError   Outcome = "error"
)

// ParseOutcome reports whether s names a known outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch o := Outcome(s); o {
	case OutcomeAllowed, OutcomeBlocked, OutcomeAlerted, OutcomeError:
		return o, true
	}
	return "", false
}

// Details carries event-specific fields. It is a struct, not a map, so that
// json.Marshal output is stable for hash chaining.
type Details struct {
	Level       string   `json:"level,omitempty"`
	ThreatLevel int      `json:"threat_level,omitempty"`
	RiskLevel   string   `json:"risk_level,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	ToolName    string   `json:"tool_name,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Mechanism   string   `json:"mechanism,omitempty"`
	Seed        string   `json:"seed,omitempty"`
	DurationMS  int64    `json:"duration_ms,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Anomaly     string   `json:"anomaly,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Messages    int      `json:"messages,omitempty"`
	ToolCalls   int      `json:"tool_calls,omitempty"`
	Blocked     int      `json:"blocked,omitempty"`
	Operation   string   `json:"operation,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Entry is one immutable audit record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Event     Event     `json:"event"`
	Outcome   Outcome   `json:"outcome"`
	SessionID string    `json:"session_id,omitempty"`
	Details   Details   `json:"details"`
}

// Sink receives every logged entry. Errors are logged by the Log, never
// returned to callers of Log.Log.
type Sink interface {
	Write(Entry) error
	Close() error
}
