// Package validate turns detector verdicts into allow/block decisions under a
// protection level.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
)

// Result is the verdict for one message or tool call.
type Result struct {
	Safe        bool            `json:"safe"`
	ShouldBlock bool            `json:"should_block"`
	Issues      []detect.Issue  `json:"issues,omitempty"`
	RiskLevel   detect.Severity `json:"risk_level"`
	ThreatLevel int             `json:"threat_level"`
	Duration    time.Duration   `json:"duration"`
	Reason      string          `json:"reason,omitempty"`
}

// ToolCall is a tool invocation awaiting validation.
type ToolCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Config configures a Validator.
type Config struct {
	// Detector scores text. Nil treats all content as benign.
	Detector detect.Detector
	// TrustedTools bypass every tool check. Entries may contain *.
	TrustedTools []string
	// DangerousTools always block unless the level is off. Entries may
	// contain *.
	DangerousTools []string
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Validator runs input, output and tool validation.
type Validator struct {
	detector  detect.Detector
	trusted   []string
	dangerous []string
	clock     clock.Clock
	logger    *slog.Logger
}

// New creates a Validator.
func New(cfg Config) *Validator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		detector:  cfg.Detector,
		trusted:   normalizeList(cfg.TrustedTools),
		dangerous: normalizeList(cfg.DangerousTools),
		clock:     clock.OrReal(cfg.Clock),
		logger:    logger,
	}
}

// Input scores an inbound message.
func (v *Validator) Input(ctx context.Context, content string, lp policy.LevelPolicy) Result {
	return v.text(ctx, "input", content, lp)
}

// Output scores an outgoing message.
func (v *Validator) Output(ctx context.Context, content string, lp policy.LevelPolicy) Result {
	return v.text(ctx, "output", content, lp)
}

// Tool scores a tool call. An empty name or unencodable params block at every
// enabled level, as does a name on the dangerous list. A trusted name skips
// scoring entirely.
func (v *Validator) Tool(ctx context.Context, call ToolCall, lp policy.LevelPolicy) Result {
	start := v.clock.Now()
	if !lp.Enabled() {
		return v.finish(start, Result{Safe: true})
	}

	name := escape.NormalizeToolName(call.Name)
	if name == "" {
		return v.finish(start, invalid("tool name is required"))
	}
	if matchAny(v.trusted, name) {
		return v.finish(start, Result{Safe: true, Reason: "trusted tool"})
	}

	payload, err := json.Marshal(call.Params)
	if err != nil {
		return v.finish(start, invalid(fmt.Sprintf("tool params are not encodable: %v", err)))
	}

	text := name
	if len(call.Params) > 0 {
		text += " " + string(payload)
	}
	res := v.score(ctx, "tool", text, lp)

	if matchAny(v.dangerous, name) {
		res.Issues = append(res.Issues, detect.Issue{
			Type:        detect.CategoryDangerousTool,
			Description: fmt.Sprintf("tool %q is on the dangerous list", name),
			Evidence:    name,
			Severity:    detect.SeverityCritical,
		})
		res.Safe = false
		res.ShouldBlock = true
		res.RiskLevel = detect.MaxSeverity(res.Issues)
		if res.Reason == "" {
			res.Reason = fmt.Sprintf("dangerous tool: %s", name)
		}
	}
	return v.finish(start, res)
}

func (v *Validator) text(ctx context.Context, kind, content string, lp policy.LevelPolicy) Result {
	start := v.clock.Now()
	if !lp.Enabled() || strings.TrimSpace(content) == "" {
		return v.finish(start, Result{Safe: true})
	}
	return v.finish(start, v.score(ctx, kind, content, lp))
}

// score runs the detector and applies the level's blocking rules.
func (v *Validator) score(ctx context.Context, kind, text string, lp policy.LevelPolicy) Result {
	if v.detector == nil {
		return Result{Safe: true}
	}

	analysis, err := v.detector.Analyze(ctx, text)
	if err != nil {
		if lp.FailClosed {
			v.logger.Warn("detector failed, blocking", "kind", kind, "level", lp.Level, "error", err)
			issue := detect.Issue{
				Type:        detect.CategoryDetectorError,
				Description: "detector failed",
				Evidence:    err.Error(),
				Severity:    detect.SeverityCritical,
			}
			return Result{
				ShouldBlock: true,
				Issues:      []detect.Issue{issue},
				ThreatLevel: detect.MaxThreatLevel,
				Reason:      fmt.Sprintf("detector failed: %v", err),
			}
		}
		v.logger.Warn("detector failed, allowing", "kind", kind, "level", lp.Level, "error", err)
		return Result{Safe: true, Reason: "detector unavailable"}
	}

	res := Result{
		Safe:        len(analysis.Issues) == 0,
		Issues:      analysis.Issues,
		ThreatLevel: detect.ClampThreat(analysis.ThreatLevel),
	}
	if blocking := lp.BlockingIssues(analysis.Issues); len(blocking) > 0 {
		res.ShouldBlock = true
		res.Reason = fmt.Sprintf("%s: %s", blocking[0].Type, blocking[0].Description)
	}
	return res
}

func (v *Validator) finish(start time.Time, r Result) Result {
	r.RiskLevel = detect.MaxSeverity(r.Issues)
	r.Duration = v.clock.Now().Sub(start)
	return r
}

func invalid(reason string) Result {
	return Result{
		ShouldBlock: true,
		Issues: []detect.Issue{{
			Type:        detect.CategoryInvalidInput,
			Description: reason,
			Severity:    detect.SeverityHigh,
		}},
		Reason: reason,
	}
}

func normalizeList(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = escape.NormalizeToolName(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func matchAny(list []string, name string) bool {
	for _, entry := range list {
		if escape.MatchPatternName(entry, name) {
			return true
		}
	}
	return false
}
