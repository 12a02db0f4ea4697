package audit

import (
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/session"
	"github.com/ppiankov/hookwarden/internal/validate"
)

// outcomeFor maps a validation result to an outcome: blocked when it blocks,
// alerted when it found issues, allowed otherwise.
func outcomeFor(res validate.Result) Outcome {
	switch {
	case res.ShouldBlock:
		return OutcomeBlocked
	case len(res.Issues) > 0:
		return OutcomeAlerted
	default:
		return OutcomeAllowed
	}
}

func resultDetails(level policy.Level, res validate.Result) Details {
	return Details{
		Level:       string(level),
		ThreatLevel: res.ThreatLevel,
		RiskLevel:   string(res.RiskLevel),
		Categories:  categories(res.Issues),
		Reason:      res.Reason,
		DurationMS:  res.Duration.Milliseconds(),
	}
}

func categories(issues []detect.Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[detect.Category]bool, len(issues))
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		if !seen[is.Type] {
			seen[is.Type] = true
			out = append(out, string(is.Type))
		}
	}
	return out
}

// LogInputAnalysis records the scoring of an inbound message.
func (l *Log) LogInputAnalysis(sessionID string, level policy.Level, res validate.Result) Entry {
	return l.Log(Entry{
		Event:     EventInputAnalysis,
		Outcome:   outcomeFor(res),
		SessionID: sessionID,
		Details:   resultDetails(level, res),
	})
}

// LogOutputValidation records the decision on an outgoing message.
func (l *Log) LogOutputValidation(sessionID string, level policy.Level, res validate.Result) Entry {
	return l.Log(Entry{
		Event:     EventOutputValidation,
		Outcome:   outcomeFor(res),
		SessionID: sessionID,
		Details:   resultDetails(level, res),
	})
}

// LogToolValidation records the decision on a tool call.
func (l *Log) LogToolValidation(sessionID, toolName string, level policy.Level, res validate.Result) Entry {
	d := resultDetails(level, res)
	d.ToolName = toolName
	return l.Log(Entry{
		Event:     EventToolValidation,
		Outcome:   outcomeFor(res),
		SessionID: sessionID,
		Details:   d,
	})
}

// LogSeedInjection records that seed context was added at agent start.
func (l *Log) LogSeedInjection(sessionID string, level policy.Level, seed policy.SeedTemplate) Entry {
	return l.Log(Entry{
		Event:     EventSeedInjection,
		Outcome:   OutcomeAllowed,
		SessionID: sessionID,
		Details:   Details{Level: string(level), Seed: string(seed)},
	})
}

// LogSessionStart records a new session.
func (l *Log) LogSessionStart(sessionID string, level policy.Level) Entry {
	return l.Log(Entry{
		Event:     EventSessionStart,
		Outcome:   OutcomeAllowed,
		SessionID: sessionID,
		Details:   Details{Level: string(level)},
	})
}

// LogSessionEnd records a session summary. The outcome is alerted when an
// anomaly was detected.
func (l *Log) LogSessionEnd(sum session.Summary, anomaly session.Anomaly) Entry {
	success := sum.Success
	d := Details{
		DurationMS:  sum.Duration.Milliseconds(),
		Success:     &success,
		ThreatLevel: sum.MaxThreatLevel,
		Messages:    sum.MessageCount,
		ToolCalls:   sum.ToolCallCount,
		Blocked:     sum.ActionsBlocked,
	}
	outcome := OutcomeAllowed
	if anomaly.Detected {
		outcome = OutcomeAlerted
		d.Anomaly = string(anomaly.Type)
		d.Confidence = anomaly.Confidence
		d.Reason = anomaly.Description
	}
	return l.Log(Entry{
		Event:     EventSessionEnd,
		Outcome:   outcome,
		SessionID: sum.SessionID,
		Details:   d,
	})
}

// LogEscapeUsed records an action that passed only because of an escape
// hatch. toolName is empty for outgoing messages.
func (l *Log) LogEscapeUsed(sessionID string, mechanism escape.Mechanism, toolName, reason string) Entry {
	return l.Log(Entry{
		Event:     EventEscapeUsed,
		Outcome:   OutcomeAllowed,
		SessionID: sessionID,
		Details: Details{
			Mechanism: string(mechanism),
			ToolName:  toolName,
			Reason:    reason,
		},
	})
}

// LogError records a failure inside operation.
func (l *Log) LogError(sessionID, operation string, err error) Entry {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.Log(Entry{
		Event:     EventError,
		Outcome:   OutcomeError,
		SessionID: sessionID,
		Details:   Details{Operation: operation, Error: msg},
	})
}
