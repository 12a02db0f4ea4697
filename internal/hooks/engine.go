// Package hooks turns agent lifecycle events into enforcement decisions.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/hookwarden/internal/alert"
	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/redact"
	"github.com/ppiankov/hookwarden/internal/session"
	"github.com/ppiankov/hookwarden/internal/validate"
)

// Deps are the collaborators an Engine drives. Validator, Sessions, Escape
// and Audit are required; Alerts may be nil.
type Deps struct {
	Validator *validate.Validator
	Sessions  *session.Manager
	Escape    *escape.Coordinator
	Audit     *audit.Log
	Alerts    *alert.Manager
	Logger    *slog.Logger
}

// Options are the tunable parts of an Engine.
type Options struct {
	Level    policy.Level
	Policies policy.Policies
	Anomaly  session.AnomalyConfig
}

// Engine wires events to validation, session state, escape hatches, audit and
// alerts. Safe for concurrent use; events of one session must arrive in order.
type Engine struct {
	validator *validate.Validator
	sessions  *session.Manager
	escape    *escape.Coordinator
	audit     *audit.Log
	alerts    *alert.Manager
	logger    *slog.Logger
	anomaly   session.AnomalyConfig

	mu       sync.RWMutex
	level    policy.Level
	policies policy.Policies
}

// New creates an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Validator == nil || deps.Sessions == nil || deps.Escape == nil || deps.Audit == nil {
		return nil, errors.New("hooks: validator, sessions, escape and audit are required")
	}
	if opts.Policies == nil {
		opts.Policies = policy.DefaultPolicies()
	}
	if opts.Level == "" {
		opts.Level = policy.LevelGuard
	}
	if _, err := policy.ParseLevel(string(opts.Level)); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		validator: deps.Validator,
		sessions:  deps.Sessions,
		escape:    deps.Escape,
		audit:     deps.Audit,
		alerts:    deps.Alerts,
		logger:    logger,
		anomaly:   opts.Anomaly,
		level:     opts.Level,
		policies:  opts.Policies,
	}
	deps.Sessions.OnEvict(e.onSessionEvicted)
	return e, nil
}

// onSessionEvicted closes out a session the store reclaimed without an
// agent_end, so its escapes do not outlive it.
func (e *Engine) onSessionEvicted(sum session.Summary) {
	e.escape.CleanupSession(sum.SessionID)
	e.audit.LogSessionEnd(sum, session.Anomaly{})
	e.logger.Info("session evicted", "session_id", sum.SessionID, "duration", sum.Duration)
}

// Level returns the active protection level.
func (e *Engine) Level() policy.Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.level
}

// SetLevel switches the protection level.
func (e *Engine) SetLevel(l policy.Level) error {
	l, err := policy.ParseLevel(string(l))
	if err != nil {
		return err
	}
	e.mu.Lock()
	prev := e.level
	e.level = l
	e.mu.Unlock()
	if prev != l {
		e.logger.Info("protection level changed", "from", prev, "to", l)
	}
	return nil
}

// SetPolicies replaces the level definitions.
func (e *Engine) SetPolicies(p policy.Policies) {
	e.mu.Lock()
	e.policies = p
	e.mu.Unlock()
}

// Policy returns the active level's policy.
func (e *Engine) Policy() policy.LevelPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policies.For(e.level)
}

// Escape returns the escape coordinator.
func (e *Engine) Escape() *escape.Coordinator { return e.escape }

// Audit returns the audit log.
func (e *Engine) Audit() *audit.Log { return e.audit }

// Alerts returns the alert manager, or nil.
func (e *Engine) Alerts() *alert.Manager { return e.alerts }

// Sessions returns the session store.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Validator returns the validator.
func (e *Engine) Validator() *validate.Validator { return e.validator }

// session returns the state for sid, auditing its start on creation.
func (e *Engine) session(sid string, level policy.Level) *session.State {
	st, created := e.sessions.GetOrCreate(sid)
	if created {
		e.audit.LogSessionStart(sid, level)
	}
	return st
}

// OnMessageReceived scores an inbound message and records its threat level.
func (e *Engine) OnMessageReceived(ctx context.Context, ev MessageReceived) {
	lp := e.Policy()
	if !lp.Enabled() {
		return
	}
	sid := ResolveSessionID(ev.SessionID, ev.Context)
	st := e.session(sid, lp.Level)

	res := e.validator.Input(ctx, ev.Content, lp)
	st.RecordMessageReceived(res.ThreatLevel)
	e.audit.LogInputAnalysis(sid, lp.Level, res)
	e.auditDetectorError(sid, "message_received", res)

	if lp.Alert.HighThreatInput && res.ThreatLevel >= highThreatLevel {
		e.alert(st, func(m *alert.Manager) alert.SendResult {
			return m.AlertHighThreatInput(sid, res.ThreatLevel)
		})
	}
	if lp.Alert.PromptInjection {
		if is, ok := firstOf(res.Issues, detect.CategoryPromptInjection); ok {
			e.alert(st, func(m *alert.Manager) alert.SendResult {
				return m.AlertPromptInjection(sid, is.Description)
			})
		}
	}
}

// highThreatLevel is the threat level that raises a high threat input alert.
const highThreatLevel = 4

// OnBeforeAgentStart returns seed context for the session, or nil at off or
// when the level has no seed.
func (e *Engine) OnBeforeAgentStart(_ context.Context, ev BeforeAgentStart) *AgentStartResult {
	lp := e.Policy()
	if !lp.Enabled() {
		return nil
	}
	sid := ResolveSessionID(ev.SessionID, ev.Context)
	e.session(sid, lp.Level)

	text := lp.SeedFor()
	if text == "" {
		return nil
	}
	e.audit.LogSeedInjection(sid, lp.Level, lp.Seed)
	return &AgentStartResult{AdditionalContext: text}
}

// OnMessageSending validates an outgoing message. It returns nil when the
// message may be sent.
func (e *Engine) OnMessageSending(ctx context.Context, ev MessageSending) *SendingResult {
	lp := e.Policy()
	if !lp.Enabled() {
		return nil
	}
	sid := ResolveSessionID(ev.SessionID, ev.Context)
	st := e.session(sid, lp.Level)

	res := e.validator.Output(ctx, ev.Content, lp)
	e.auditDetectorError(sid, "message_sending", res)
	if res.ShouldBlock {
		if d := e.escape.ShouldAllowOutput(sid); d.Allowed {
			e.audit.LogEscapeUsed(sid, d.Mechanism, "", res.Reason)
			res.ShouldBlock = false
		}
	}

	st.RecordOutputValidation(res.ShouldBlock, len(res.Issues))
	e.audit.LogOutputValidation(sid, lp.Level, res)
	if !res.ShouldBlock {
		return nil
	}

	if lp.Alert.ActionBlocked {
		e.alert(st, func(m *alert.Manager) alert.SendResult {
			return m.AlertActionBlocked(sid, "outgoing message", res.Reason)
		})
	}
	return &SendingResult{Cancel: true, CancelReason: blockMessage(res.Reason)}
}

// OnBeforeToolCall validates a tool call. It returns nil when the call may
// proceed.
func (e *Engine) OnBeforeToolCall(ctx context.Context, ev BeforeToolCall) *ToolCallResult {
	lp := e.Policy()
	if !lp.Enabled() {
		return nil
	}
	sid := ResolveSessionID(ev.SessionID, ev.Context)
	st := e.session(sid, lp.Level)

	res := e.validator.Tool(ctx, validate.ToolCall{Name: ev.ToolName, Params: ev.Params}, lp)
	e.auditDetectorError(sid, "before_tool_call", res)
	if res.ShouldBlock {
		if d := e.escape.ShouldAllowTool(sid, ev.ToolName); d.Allowed {
			e.audit.LogEscapeUsed(sid, d.Mechanism, ev.ToolName, res.Reason)
			res.ShouldBlock = false
		}
	}

	st.RecordToolCall(res.ShouldBlock, len(res.Issues))
	e.audit.LogToolValidation(sid, ev.ToolName, lp.Level, res)
	if !res.ShouldBlock {
		return nil
	}
	e.logger.Info("tool call blocked",
		"session_id", sid, "tool", ev.ToolName, "reason", res.Reason, "params", redact.Params(ev.Params))

	if lp.Alert.ActionBlocked {
		e.alert(st, func(m *alert.Manager) alert.SendResult {
			return m.AlertActionBlocked(sid, fmt.Sprintf("tool %q", ev.ToolName), res.Reason)
		})
	}
	return &ToolCallResult{Block: true, BlockReason: blockMessage(res.Reason)}
}

// EndReport is what OnAgentEnd learned about the finished session.
type EndReport struct {
	Summary session.Summary `json:"summary"`
	Anomaly session.Anomaly `json:"anomaly"`
}

// OnAgentEnd closes the session: it scores the session for anomalies, audits
// the summary and clears per-session escape state. It returns nil when the
// session was unknown.
func (e *Engine) OnAgentEnd(_ context.Context, ev AgentEnd) *EndReport {
	lp := e.Policy()
	sid := ResolveSessionID(ev.SessionID, ev.Context)
	defer e.escape.CleanupSession(sid)

	if ev.Error != "" {
		e.audit.LogError(sid, "agent_end", errors.New(ev.Error))
	}

	st, ok := e.sessions.Get(sid)
	if !ok {
		return nil
	}
	anomaly := session.DetectAnomalies(st.Snapshot(), e.anomaly)
	if anomaly.Detected && lp.Alert.SessionAnomaly {
		e.alert(st, func(m *alert.Manager) alert.SendResult {
			return m.AlertSessionAnomaly(sid, string(anomaly.Type), anomaly.Confidence)
		})
	}

	sum, ok := e.sessions.EndSession(sid, ev.Success)
	if !ok {
		return nil
	}
	if ev.DurationMS > 0 {
		sum.Duration = time.Duration(ev.DurationMS) * time.Millisecond
	}
	e.audit.LogSessionEnd(sum, anomaly)
	if anomaly.Detected {
		e.logger.Warn("session anomaly", "session_id", sid, "type", anomaly.Type, "confidence", anomaly.Confidence)
	}
	return &EndReport{Summary: sum, Anomaly: anomaly}
}

// alert sends through the manager, if any, and counts accepted alerts on st.
func (e *Engine) alert(st *session.State, send func(*alert.Manager) alert.SendResult) {
	if e.alerts == nil {
		return
	}
	if res := send(e.alerts); res.Queued {
		st.RecordAlert()
	}
}

func (e *Engine) auditDetectorError(sid, op string, res validate.Result) {
	if is, ok := firstOf(res.Issues, detect.CategoryDetectorError); ok {
		e.audit.LogError(sid, op, errors.New(is.Evidence))
	}
}

func firstOf(issues []detect.Issue, c detect.Category) (detect.Issue, bool) {
	for _, is := range issues {
		if is.Type == c {
			return is, true
		}
	}
	return detect.Issue{}, false
}

func blockMessage(reason string) string {
	if reason == "" {
		return "blocked by hookwarden"
	}
	return "blocked by hookwarden: " + reason
}
