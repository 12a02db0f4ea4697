// Package client talks to a running hookwarden server over its HTTP hook API
// and gRPC health service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/console"
	"github.com/ppiankov/hookwarden/internal/hooks"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// HealthService is the gRPC health service name the server reports under.
const HealthService = "hookwarden.v1.Hooks"

// Client connects to a hookwarden HTTP server.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for addr, which may be host:port or a full URL.
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: DefaultTimeout}}
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string { return c.base }

// Console runs one operator command for sessionID.
func (c *Client) Console(ctx context.Context, sessionID, command string) (console.Result, error) {
	var res console.Result
	err := c.post(ctx, "/v1/console", map[string]string{"session_id": sessionID, "command": command}, &res)
	return res, err
}

// Status fetches the engine status for sessionID.
func (c *Client) Status(ctx context.Context, sessionID string) (hooks.Status, error) {
	var st hooks.Status
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	err := c.get(ctx, "/v1/status", q, &st)
	return st, err
}

// Audit queries the server's in-memory audit log.
func (c *Client) Audit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	q := url.Values{}
	if f.Event != "" {
		q.Set("event", string(f.Event))
	}
	if f.Outcome != "" {
		q.Set("outcome", string(f.Outcome))
	}
	if f.SessionID != "" {
		q.Set("session_id", f.SessionID)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	var entries []audit.Entry
	err := c.get(ctx, "/v1/audit", q, &entries)
	return entries, err
}

// MessageReceived reports an inbound message. It never blocks the message.
func (c *Client) MessageReceived(ctx context.Context, ev hooks.MessageReceived) error {
	return c.post(ctx, "/v1/hooks/message_received", ev, nil)
}

// BeforeAgentStart fetches the security context to inject, if any.
func (c *Client) BeforeAgentStart(ctx context.Context, ev hooks.BeforeAgentStart) (hooks.AgentStartResult, error) {
	var res hooks.AgentStartResult
	err := c.post(ctx, "/v1/hooks/before_agent_start", ev, &res)
	return res, err
}

// MessageSending asks whether an outgoing message may be sent.
// Fail-closed: an unreachable server cancels the message.
func (c *Client) MessageSending(ctx context.Context, ev hooks.MessageSending) hooks.SendingResult {
	var res hooks.SendingResult
	if err := c.post(ctx, "/v1/hooks/message_sending", ev, &res); err != nil {
		return hooks.SendingResult{Cancel: true, CancelReason: fmt.Sprintf("hookwarden unreachable: %v", err)}
	}
	return res
}

// BeforeToolCall asks whether a tool call may run.
// Fail-closed: an unreachable server blocks the call.
func (c *Client) BeforeToolCall(ctx context.Context, ev hooks.BeforeToolCall) hooks.ToolCallResult {
	var res hooks.ToolCallResult
	if err := c.post(ctx, "/v1/hooks/before_tool_call", ev, &res); err != nil {
		return hooks.ToolCallResult{Block: true, BlockReason: fmt.Sprintf("hookwarden unreachable: %v", err)}
	}
	return res
}

// AgentEnd closes a session. The report is nil when the server did not know it.
func (c *Client) AgentEnd(ctx context.Context, ev hooks.AgentEnd) (*hooks.EndReport, error) {
	var rep hooks.EndReport
	status, err := c.do(ctx, http.MethodPost, "/v1/hooks/agent_end", nil, ev, &rep)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &rep, nil
}

// CheckHealth queries the gRPC health service at addr.
func CheckHealth(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to health server: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, q, nil, out)
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	_, err := c.do(ctx, http.MethodPost, path, nil, body, out)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) (int, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
