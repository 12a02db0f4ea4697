package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/hooks"
	"github.com/ppiankov/hookwarden/internal/validate"
)

// --- Input/Output types ---

// CheckToolInput defines parameters for the hookwarden_check_tool tool.
type CheckToolInput struct {
	SessionID string         `json:"session_id,omitempty" jsonschema:"session the call belongs to"`
	ToolName  string         `json:"tool_name" jsonschema:"name of the tool to check"`
	Params    map[string]any `json:"params,omitempty" jsonschema:"tool parameters"`
}

// CheckOutputInput defines parameters for the hookwarden_check_output tool.
type CheckOutputInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session the message belongs to"`
	Content   string `json:"content" jsonschema:"outgoing message text"`
}

// CheckOutput is the dry-run verdict.
type CheckOutput struct {
	Decision    string         `json:"decision"`
	Reason      string         `json:"reason,omitempty"`
	Level       string         `json:"level"`
	ThreatLevel int            `json:"threat_level"`
	RiskLevel   string         `json:"risk_level"`
	Issues      []detect.Issue `json:"issues,omitempty"`
	// EscapeActive is true when an escape hatch would apply to a block. It is
	// reported, never consumed.
	EscapeActive bool `json:"escape_active,omitempty"`
}

// StatusInput defines parameters for the hookwarden_status tool.
type StatusInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session to report on"`
}

// StatusOutput reports the level and session counters.
type StatusOutput struct {
	Level          string `json:"level"`
	SessionID      string `json:"session_id"`
	Known          bool   `json:"known"`
	MessageCount   int    `json:"message_count"`
	ToolCallCount  int    `json:"tool_call_count"`
	ActionsBlocked int    `json:"actions_blocked"`
	MaxThreatLevel int    `json:"max_threat_level"`
	ActiveSessions int    `json:"active_sessions"`
	Paused         bool   `json:"paused"`
}

// Decisions reported by the check tools.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
	DecisionWarn  = "warn"
)

// --- Handlers ---

func (s *Server) handleCheckTool(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckToolInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	lp := s.engine.Policy()
	res := s.engine.Validator().Tool(ctx, validate.ToolCall{Name: input.ToolName, Params: input.Params}, lp)
	return nil, s.verdict(input.SessionID, string(lp.Level), res), nil
}

func (s *Server) handleCheckOutput(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckOutputInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	lp := s.engine.Policy()
	res := s.engine.Validator().Output(ctx, input.Content, lp)
	return nil, s.verdict(input.SessionID, string(lp.Level), res), nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st := s.engine.Status(sessionID(input.SessionID))
	out := StatusOutput{
		Level:          string(st.Level),
		SessionID:      st.SessionID,
		ActiveSessions: st.Sessions.ActiveSessions,
		Paused:         st.Escape.Paused,
	}
	if snap := st.Session; snap != nil {
		out.Known = true
		out.MessageCount = snap.MessageCount
		out.ToolCallCount = snap.ToolCallCount
		out.ActionsBlocked = snap.ActionsBlocked
		out.MaxThreatLevel = snap.MaxThreatLevel
	}
	return nil, out, nil
}

func (s *Server) verdict(sid, level string, res validate.Result) CheckOutput {
	out := CheckOutput{
		Decision:    DecisionAllow,
		Reason:      res.Reason,
		Level:       level,
		ThreatLevel: res.ThreatLevel,
		RiskLevel:   string(res.RiskLevel),
		Issues:      res.Issues,
	}
	switch {
	case res.ShouldBlock:
		out.Decision = DecisionBlock
		out.EscapeActive = s.engine.Escape().HasActiveEscape(sessionID(sid))
	case len(res.Issues) > 0:
		out.Decision = DecisionWarn
	}
	return out
}

func sessionID(sid string) string {
	if sid = strings.TrimSpace(sid); sid == "" {
		return hooks.DefaultSessionID
	}
	return sid
}
