package detect

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hookwarden/internal/redact"
)

// Rule is one pattern in a detector rule file.
type Rule struct {
	Pattern     string   `yaml:"pattern"`
	Category    Category `yaml:"category"`
	Severity    Severity `yaml:"severity"`
	Threat      int      `yaml:"threat"`
	Description string   `yaml:"description"`
}

// RuleSet is the YAML shape of a rule file.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// PatternDetector matches text against case-insensitive regular expressions.
// It stands in for the external detector catalog when none is wired.
type PatternDetector struct {
	rules []compiledRule
}

// NewPatternDetector compiles rules. A rule that fails to compile is an error.
func NewPatternDetector(rules []Rule) (*PatternDetector, error) {
	d := &PatternDetector{}
	for i, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		if _, ok := ParseSeverity(string(r.Severity)); !ok || r.Severity == "" {
			r.Severity = SeverityMedium
		}
		r.Threat = ClampThreat(r.Threat)
		d.rules = append(d.rules, compiledRule{Rule: r, re: re})
	}
	return d, nil
}

// NewDefaultPatternDetector returns a detector over DefaultRules.
func NewDefaultPatternDetector() *PatternDetector {
	d, err := NewPatternDetector(DefaultRules)
	if err != nil {
		panic(fmt.Sprintf("default detector rules: %v", err))
	}
	return d
}

// LoadPatternDetector reads a rule file. Empty path or a missing file falls
// back to DefaultRules.
func LoadPatternDetector(path string) (*PatternDetector, error) {
	if path == "" {
		return NewDefaultPatternDetector(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefaultPatternDetector(), nil
		}
		return nil, fmt.Errorf("read detector rules: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse detector rules: %w", err)
	}
	return NewPatternDetector(rs.Rules)
}

// Analyze reports every matching rule. Threat level is the highest matched
// rule threat. Data leak evidence is masked.
func (d *PatternDetector) Analyze(ctx context.Context, text string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}

	var a Analysis
	for _, r := range d.rules {
		loc := r.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		evidence := text[loc[0]:loc[1]]
		if r.Category == CategoryDataLeak {
			evidence = redact.MaskSecret(evidence)
		}
		a.Issues = append(a.Issues, Issue{
			Type:        r.Category,
			Description: r.Description,
			Evidence:    truncate(evidence, 80),
			Severity:    r.Severity,
		})
		if r.Threat > a.ThreatLevel {
			a.ThreatLevel = r.Threat
		}
	}
	return a, nil
}

// Len returns the number of compiled rules.
func (d *PatternDetector) Len() int {
	return len(d.rules)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
