package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// Level is a named protection level.
type Level string

const (
	LevelOff    Level = "off"
	LevelWatch  Level = "watch"
	LevelGuard  Level = "guard"
	LevelShield Level = "shield"
)

// Levels lists every level from least to most restrictive.
var Levels = []Level{LevelOff, LevelWatch, LevelGuard, LevelShield}

// ErrInvalidLevel is returned by ParseLevel for unknown names.
var ErrInvalidLevel = errors.New("invalid_level")

// ParseLevel maps a name to a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Levels {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want off, watch, guard or shield)", ErrInvalidLevel, s)
}

// AllCategories in a Block list means every category blocks.
const AllCategories detect.Category = "*"

// AlertToggles selects which alert kinds a level dispatches.
type AlertToggles struct {
	HighThreatInput bool `yaml:"high_threat_input" json:"high_threat_input"`
	ActionBlocked   bool `yaml:"action_blocked"    json:"action_blocked"`
	PromptInjection bool `yaml:"prompt_injection"  json:"prompt_injection"`
	SessionAnomaly  bool `yaml:"session_anomaly"   json:"session_anomaly"`
}

// LevelPolicy is the bundle of toggles behind one protection level.
type LevelPolicy struct {
	Level      Level             `yaml:"-"           json:"level"`
	Block      []detect.Category `yaml:"block"       json:"block"`
	Alert      AlertToggles      `yaml:"alert"       json:"alert"`
	Seed       SeedTemplate      `yaml:"seed"        json:"seed"`
	FailClosed bool              `yaml:"fail_closed" json:"fail_closed"`
}

// Enabled is false only for the off level.
func (p LevelPolicy) Enabled() bool {
	return p.Level != LevelOff
}

// Blocks reports whether issues of category c block at this level.
func (p LevelPolicy) Blocks(c detect.Category) bool {
	if !p.Enabled() {
		return false
	}
	for _, b := range p.Block {
		if b == AllCategories || b == c {
			return true
		}
	}
	return false
}

// BlocksAny reports whether any present issue category blocks.
func (p LevelPolicy) BlocksAny(issues []detect.Issue) bool {
	for _, is := range issues {
		if p.Blocks(is.Type) {
			return true
		}
	}
	return false
}

// BlockingIssues returns the subset of issues whose category blocks.
func (p LevelPolicy) BlockingIssues(issues []detect.Issue) []detect.Issue {
	var out []detect.Issue
	for _, is := range issues {
		if p.Blocks(is.Type) {
			out = append(out, is)
		}
	}
	return out
}

// Policies maps each level to its policy.
type Policies map[Level]LevelPolicy

// DefaultPolicies returns the built-in level definitions.
func DefaultPolicies() Policies {
	return Policies{
		LevelOff: {
			Level: LevelOff,
			Seed:  SeedNone,
		},
		LevelWatch: {
			Level: LevelWatch,
			Alert: AlertToggles{
				HighThreatInput: true,
				SessionAnomaly:  true,
			},
			Seed: SeedStandard,
		},
		LevelGuard: {
			Level: LevelGuard,
			Block: []detect.Category{
				detect.CategoryDataLeak,
				detect.CategoryDestructiveCommand,
				detect.CategorySystemPath,
				detect.CategoryPromptInjection,
				detect.CategoryDetectorError,
				detect.CategoryInvalidInput,
			},
			Alert: AlertToggles{
				HighThreatInput: true,
				ActionBlocked:   true,
				PromptInjection: true,
				SessionAnomaly:  true,
			},
			Seed:       SeedStandard,
			FailClosed: true,
		},
		LevelShield: {
			Level: LevelShield,
			Block: []detect.Category{AllCategories},
			Alert: AlertToggles{
				HighThreatInput: true,
				ActionBlocked:   true,
				PromptInjection: true,
				SessionAnomaly:  true,
			},
			Seed:       SeedStrict,
			FailClosed: true,
		},
	}
}

// Merge returns a copy of p with overrides applied per level. Unknown level
// names are rejected; off cannot be given blocking categories.
func (p Policies) Merge(overrides map[string]LevelPolicy) (Policies, error) {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	for name, o := range overrides {
		lvl, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		if lvl == LevelOff && (len(o.Block) > 0 || o.FailClosed) {
			return nil, fmt.Errorf("level off cannot block or fail closed")
		}
		if o.Seed == "" {
			o.Seed = out[lvl].Seed
		}
		if _, err := ParseSeed(string(o.Seed)); err != nil {
			return nil, fmt.Errorf("level %s: %w", lvl, err)
		}
		o.Level = lvl
		out[lvl] = o
	}
	return out, nil
}

// For returns the policy for l, falling back to the built-in definition.
func (p Policies) For(l Level) LevelPolicy {
	if lp, ok := p[l]; ok {
		return lp
	}
	return DefaultPolicies()[l]
}
