package escape

import "fmt"

// Mechanism names the escape hatch that granted access.
type Mechanism string

const (
	MechanismPause     Mechanism = "pause"
	MechanismTrust     Mechanism = "trust"
	MechanismAllowOnce Mechanism = "allow_once"
)

// Kind is what a request wants to let through.
type Kind string

const (
	KindOutput Kind = "output"
	KindTool   Kind = "tool"
)

// Request asks whether a blocked action may proceed.
type Request struct {
	SessionID string
	Kind      Kind
	ToolName  string
}

func (r Request) scope() Scope {
	if r.Kind == KindTool {
		return ScopeTool
	}
	return ScopeOutput
}

func (r Request) description() string {
	if r.Kind == KindTool {
		return fmt.Sprintf("tool:%s", r.ToolName)
	}
	return "output"
}

// Check is one link in the escape chain.
type Check interface {
	Mechanism() Mechanism
	// Allow reports whether the mechanism grants the request. It may consume
	// state, as allow-once does.
	Allow(req Request) bool
	// Active reports whether the mechanism currently applies to the session,
	// without consuming anything.
	Active(sessionID string) bool
}

// Decision is the coordinator's answer.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Mechanism Mechanism `json:"mechanism,omitempty"`
}

// Coordinator evaluates escape hatches in a fixed priority order. Each check
// is an atomic snapshot of its own store; no atomicity holds across stores.
type Coordinator struct {
	AllowOnce *AllowOnce
	Pause     *Pause
	Trust     *Trust

	chain []Check
}

// NewCoordinator builds the default chain: pause, then trust (tool requests
// only), then allow-once.
func NewCoordinator(allowOnce *AllowOnce, pause *Pause, trust *Trust) *Coordinator {
	return &Coordinator{
		AllowOnce: allowOnce,
		Pause:     pause,
		Trust:     trust,
		chain: []Check{
			pauseCheck{pause},
			trustCheck{trust},
			allowOnceCheck{allowOnce},
		},
	}
}

// Mechanisms returns the chain order.
func (c *Coordinator) Mechanisms() []Mechanism {
	out := make([]Mechanism, len(c.chain))
	for i, ch := range c.chain {
		out[i] = ch.Mechanism()
	}
	return out
}

// Evaluate walks the chain and returns the first mechanism that grants req.
func (c *Coordinator) Evaluate(req Request) Decision {
	for _, ch := range c.chain {
		if ch.Allow(req) {
			return Decision{Allowed: true, Mechanism: ch.Mechanism()}
		}
	}
	return Decision{}
}

// ShouldAllowOutput decides whether a blocked outgoing message may pass.
func (c *Coordinator) ShouldAllowOutput(sessionID string) Decision {
	return c.Evaluate(Request{SessionID: sessionID, Kind: KindOutput})
}

// ShouldAllowTool decides whether a blocked tool call may pass.
func (c *Coordinator) ShouldAllowTool(sessionID, toolName string) Decision {
	return c.Evaluate(Request{SessionID: sessionID, Kind: KindTool, ToolName: toolName})
}

// HasActiveEscape reports whether any mechanism currently applies.
func (c *Coordinator) HasActiveEscape(sessionID string) bool {
	for _, ch := range c.chain {
		if ch.Active(sessionID) {
			return true
		}
	}
	return false
}

// CleanupSession clears per-session escape state at session end. Permanent
// trust survives.
func (c *Coordinator) CleanupSession(sessionID string) {
	c.AllowOnce.Revoke(sessionID)
	c.Pause.Clear(sessionID)
	c.Trust.ClearSession(sessionID)
}

// Sweep runs every store's sweep and returns the total removed.
func (c *Coordinator) Sweep() int {
	return c.AllowOnce.Sweep() + c.Pause.Sweep() + c.Trust.Sweep()
}

type pauseCheck struct{ p *Pause }

func (pauseCheck) Mechanism() Mechanism           { return MechanismPause }
func (c pauseCheck) Allow(req Request) bool       { return c.p.IsPaused(req.SessionID) }
func (c pauseCheck) Active(sessionID string) bool { return c.p.IsPaused(sessionID) }

type trustCheck struct{ t *Trust }

func (trustCheck) Mechanism() Mechanism { return MechanismTrust }

func (c trustCheck) Allow(req Request) bool {
	if req.Kind != KindTool {
		return false
	}
	return c.t.IsTrusted(req.SessionID, req.ToolName).Trusted
}

// Active counts global trust too, since IsTrusted falls back to it.
func (c trustCheck) Active(sessionID string) bool {
	if len(c.t.List(sessionID)) > 0 {
		return true
	}
	return sessionID != GlobalSessionID && len(c.t.List(GlobalSessionID)) > 0
}

type allowOnceCheck struct{ a *AllowOnce }

func (allowOnceCheck) Mechanism() Mechanism { return MechanismAllowOnce }

func (c allowOnceCheck) Allow(req Request) bool {
	return c.a.Use(req.SessionID, req.scope(), req.description()) == nil
}

func (c allowOnceCheck) Active(sessionID string) bool {
	return c.a.Active(sessionID)
}
