package hooks

import (
	"strings"
	"time"
)

// DefaultSessionID is used when an event carries no identifying context.
const DefaultSessionID = "default"

// EventContext is host metadata used to derive a session id.
type EventContext struct {
	ChannelID      string `json:"channel_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

// MessageReceived is an inbound message. Fire-and-forget.
type MessageReceived struct {
	SessionID string       `json:"session_id,omitempty"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp,omitzero"`
	Context   EventContext `json:"context,omitzero"`
}

// BeforeAgentStart fires before the agent runs.
type BeforeAgentStart struct {
	SessionID string       `json:"session_id,omitempty"`
	Prompt    string       `json:"prompt,omitempty"`
	Context   EventContext `json:"context,omitzero"`
}

// AgentStartResult carries seed context to prepend.
type AgentStartResult struct {
	AdditionalContext string `json:"additional_context,omitempty"`
}

// MessageSending is an outgoing message awaiting approval.
type MessageSending struct {
	SessionID string       `json:"session_id,omitempty"`
	Content   string       `json:"content"`
	Context   EventContext `json:"context,omitzero"`
}

// SendingResult cancels an outgoing message.
type SendingResult struct {
	Cancel       bool   `json:"cancel"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// BeforeToolCall is a tool invocation awaiting approval.
type BeforeToolCall struct {
	SessionID string         `json:"session_id,omitempty"`
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params,omitempty"`
	Context   EventContext   `json:"context,omitzero"`
}

// ToolCallResult blocks a tool call.
type ToolCallResult struct {
	Block       bool   `json:"block"`
	BlockReason string `json:"block_reason,omitempty"`
}

// AgentEnd closes a session. Fire-and-forget.
type AgentEnd struct {
	SessionID  string       `json:"session_id,omitempty"`
	Success    bool         `json:"success"`
	DurationMS int64        `json:"duration_ms,omitempty"`
	Error      string       `json:"error,omitempty"`
	Context    EventContext `json:"context,omitzero"`
}

// ResolveSessionID picks the session id for an event: the explicit id, else
// channel and conversation ids, else the agent id, else DefaultSessionID.
func ResolveSessionID(explicit string, ec EventContext) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	var parts []string
	for _, p := range []string{ec.ChannelID, ec.ConversationID} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ":")
	}
	if id := strings.TrimSpace(ec.AgentID); id != "" {
		return "agent:" + id
	}
	return DefaultSessionID
}
