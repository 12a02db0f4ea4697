package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// TimestampFormat is the layout used when printing entries.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// FormatTable renders entries as a human-readable table.
func FormatTable(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-24s %-18s %-8s %-20s %s\n", "TIME", "EVENT", "OUTCOME", "SESSION", "DETAIL"))
	b.WriteString(separator + "\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%-24s %-18s %-8s %-20s %s\n",
			e.Timestamp.UTC().Format(TimestampFormat),
			e.Event,
			strings.ToUpper(string(e.Outcome)),
			truncate(e.SessionID, 20),
			truncate(detailLine(e.Details), 60)))
	}
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(entries))
	return b.String()
}

// FormatJSON renders entries as indented JSON.
func FormatJSON(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit entries: %w", err)
	}
	return string(data), nil
}

func detailLine(d Details) string {
	parts := []string{}
	if d.ToolName != "" {
		parts = append(parts, "tool="+d.ToolName)
	}
	if d.ThreatLevel > 0 {
		parts = append(parts, fmt.Sprintf("threat=%d", d.ThreatLevel))
	}
	if d.Mechanism != "" {
		parts = append(parts, "via="+d.Mechanism)
	}
	if d.Anomaly != "" {
		parts = append(parts, "anomaly="+d.Anomaly)
	}
	if d.Reason != "" {
		parts = append(parts, d.Reason)
	}
	if d.Error != "" {
		parts = append(parts, "error="+d.Error)
	}
	return strings.Join(parts, " ")
}

func formatSummary(entries []Entry) string {
	counts := map[Outcome]int{}
	for _, e := range entries {
		counts[e.Outcome]++
	}
	parts := []string{}
	for _, o := range []Outcome{OutcomeAllowed, OutcomeBlocked, OutcomeAlerted, OutcomeError} {
		if counts[o] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[o], o))
		}
	}
	return fmt.Sprintf("Summary: %d entries | %s\n", len(entries), strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
