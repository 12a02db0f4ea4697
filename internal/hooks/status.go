package hooks

import (
	"time"

	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/session"
)

// EscapeStatus lists the escape hatches that currently apply to a session.
type EscapeStatus struct {
	AllowOnce    *escape.Token        `json:"allow_once,omitempty"`
	Paused       bool                 `json:"paused"`
	PauseRemain  string               `json:"pause_remaining,omitempty"`
	GlobalPaused bool                 `json:"global_paused"`
	Trusted      []escape.TrustRecord `json:"trusted,omitempty"`
	GlobalTrust  []escape.TrustRecord `json:"global_trusted,omitempty"`
}

// Status is a point-in-time view of the engine for one session.
type Status struct {
	SessionID string                 `json:"session_id"`
	Level     policy.Level           `json:"level"`
	Session   *session.Snapshot      `json:"session,omitempty"`
	Escape    EscapeStatus           `json:"escape"`
	Sessions  session.AggregateStats `json:"sessions"`
	Alerts    bool                   `json:"alerts_enabled"`
}

// Status reports level, session counters and active escapes for sid.
func (e *Engine) Status(sid string) Status {
	if sid == "" {
		sid = DefaultSessionID
	}
	st := Status{
		SessionID: sid,
		Level:     e.Level(),
		Sessions:  e.sessions.AggregateStats(),
		Alerts:    e.alerts != nil && e.alerts.Enabled(),
	}
	if s, ok := e.sessions.Get(sid); ok {
		snap := s.Snapshot()
		st.Session = &snap
	}

	c := e.escape
	if c.AllowOnce.Active(sid) {
		if tok, ok := c.AllowOnce.Get(sid); ok {
			st.Escape.AllowOnce = &tok
		}
	}
	st.Escape.Paused = c.Pause.IsPaused(sid)
	if st.Escape.Paused {
		if d, indefinite := c.Pause.Remaining(sid); indefinite {
			st.Escape.PauseRemain = "indefinite"
		} else {
			st.Escape.PauseRemain = d.Round(time.Second).String()
		}
	}
	st.Escape.GlobalPaused = c.Pause.IsPaused(escape.GlobalSessionID)
	st.Escape.Trusted = c.Trust.List(sid)
	if sid != escape.GlobalSessionID {
		st.Escape.GlobalTrust = c.Trust.List(escape.GlobalSessionID)
	}
	return st
}
