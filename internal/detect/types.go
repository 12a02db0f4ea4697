// Package detect defines the boundary to content detectors. The engine treats
// a detector as an opaque scorer: it never interprets issue types or evidence
// beyond category and severity.
package detect

import (
	"context"
	"strings"
)

// Severity grades a single issue.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities. Unknown values rank as none.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity maps a string to a Severity. ok is false for unknown values.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRank[sev]
	return sev, ok
}

// Category names a class of issue. Protection levels block by category.
type Category string

const (
	CategoryDataLeak           Category = "data_leak"
	CategoryDestructiveCommand Category = "destructive_command"
	CategorySystemPath         Category = "system_path"
	CategorySuspiciousURL      Category = "suspicious_url"
	CategoryPromptInjection    Category = "prompt_injection"
	CategoryHarmfulContent     Category = "harmful_content"
	CategoryDetectorError      Category = "detector_error"
	CategoryInvalidInput       Category = "invalid_input"
	CategoryDangerousTool      Category = "dangerous_tool"
)

// Issue is one finding reported by a detector.
type Issue struct {
	Type        Category `json:"type"`
	Description string   `json:"description"`
	Evidence    string   `json:"evidence,omitempty"`
	Severity    Severity `json:"severity"`
}

// Analysis is a detector verdict for one piece of text.
type Analysis struct {
	// ThreatLevel is 0 (benign) to 5 (certain threat).
	ThreatLevel int     `json:"threat_level"`
	Issues      []Issue `json:"issues,omitempty"`
}

// MaxThreatLevel is the highest threat level a detector may report.
const MaxThreatLevel = 5

// ClampThreat bounds a threat level to 0..5.
func ClampThreat(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxThreatLevel {
		return MaxThreatLevel
	}
	return level
}

// Detector scores text. Implementations may block on I/O and must honor ctx.
type Detector interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, text string) (Analysis, error)

// Analyze calls f.
func (f DetectorFunc) Analyze(ctx context.Context, text string) (Analysis, error) {
	return f(ctx, text)
}

// MaxSeverity returns the highest severity present, or none.
func MaxSeverity(issues []Issue) Severity {
	max := SeverityNone
	for _, is := range issues {
		if is.Severity.Rank() > max.Rank() {
			max = is.Severity
		}
	}
	return max
}
