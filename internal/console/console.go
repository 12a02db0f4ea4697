// Package console implements the operator commands that drive escape hatches
// and the protection level.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/hookwarden/internal/audit"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/hooks"
	"github.com/ppiankov/hookwarden/internal/policy"
)

const (
	defaultLogCount = 10
	maxLogCount     = 100
)

// Result is the reply to one command.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

type handler func(ctx context.Context, sid string, args []string) Result

// Console executes operator commands against an Engine.
type Console struct {
	engine   *hooks.Engine
	logger   *slog.Logger
	commands map[string]handler
}

// New creates a Console. logger may be nil.
func New(engine *hooks.Engine, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Console{engine: engine, logger: logger}
	c.commands = map[string]handler{
		"status":     c.status,
		"level":      c.level,
		"allow-once": c.allowOnce,
		"pause":      c.pause,
		"resume":     c.resume,
		"trust":      c.trust,
		"untrust":    c.untrust,
		"log":        c.log,
		"help":       c.help,
	}
	return c
}

// Execute runs one command line for session sid. A leading slash is ignored.
func (c *Console) Execute(ctx context.Context, sid, line string) Result {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return fail("empty command, try help")
	}
	if sid = strings.TrimSpace(sid); sid == "" {
		sid = hooks.DefaultSessionID
	}

	name := strings.ToLower(fields[0])
	h, found := c.commands[name]
	if !found {
		return fail("unknown command %q, try help", fields[0])
	}
	res := h(ctx, sid, fields[1:])
	c.logger.Info("console command", "session_id", sid, "command", name, "success", res.Success)
	return res
}

func (c *Console) status(_ context.Context, sid string, _ []string) Result {
	st := c.engine.Status(sid)
	var b strings.Builder
	fmt.Fprintf(&b, "Level:    %s\n", st.Level)
	fmt.Fprintf(&b, "Session:  %s\n", st.SessionID)
	if s := st.Session; s != nil {
		fmt.Fprintf(&b, "Activity: %d messages, %d tool calls, %d blocked, max threat %d\n",
			s.MessageCount, s.ToolCallCount, s.ActionsBlocked, s.MaxThreatLevel)
	}

	var escapes []string
	if t := st.Escape.AllowOnce; t != nil {
		escapes = append(escapes, fmt.Sprintf("allow-once (%s, expires %s)", t.Scope, t.ExpiresAt.Format(time.RFC3339)))
	}
	if st.Escape.Paused {
		escapes = append(escapes, "paused ("+st.Escape.PauseRemain+")")
	}
	if st.Escape.GlobalPaused {
		escapes = append(escapes, "global pause")
	}
	if n := len(st.Escape.Trusted) + len(st.Escape.GlobalTrust); n > 0 {
		escapes = append(escapes, fmt.Sprintf("%d trusted tools", n))
	}
	if len(escapes) == 0 {
		escapes = append(escapes, "none")
	}
	fmt.Fprintf(&b, "Escapes:  %s\n", strings.Join(escapes, ", "))
	fmt.Fprintf(&b, "Sessions: %d active", st.Sessions.ActiveSessions)
	return ok("%s", b.String())
}

func (c *Console) level(_ context.Context, _ string, args []string) Result {
	if len(args) == 0 {
		names := make([]string, len(policy.Levels))
		for i, l := range policy.Levels {
			names[i] = string(l)
		}
		return ok("Protection level: %s (available: %s)", c.engine.Level(), strings.Join(names, ", "))
	}
	prev := c.engine.Level()
	if err := c.engine.SetLevel(policy.Level(args[0])); err != nil {
		return fail("%v", err)
	}
	return ok("Protection level changed: %s -> %s", prev, c.engine.Level())
}

func (c *Console) allowOnce(_ context.Context, sid string, args []string) Result {
	var opts escape.GrantOptions
	if len(args) > 0 {
		scope, err := escape.ParseScope(args[0])
		if err != nil {
			return fail("invalid scope %q (want output, tool or any)", args[0])
		}
		opts.Scope = scope
	}
	tok, err := c.engine.Escape().AllowOnce.Grant(sid, opts)
	if err != nil {
		return fail("allow-once: %v", err)
	}
	return ok("Allow-once granted for the next blocked %s action (expires in %s)",
		tok.Scope, tok.ExpiresAt.Sub(tok.CreatedAt))
}

func (c *Console) pause(_ context.Context, sid string, args []string) Result {
	target, args := scopeTarget(sid, args)

	var opts escape.PauseOptions
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "indefinite", "forever":
			opts.Indefinite = true
		default:
			d, err := ParseDuration(args[0])
			if err != nil {
				return fail("invalid duration %q", args[0])
			}
			opts.Duration = d
		}
		if len(args) > 1 {
			opts.Reason = strings.Join(args[1:], " ")
		}
	}

	rec, err := c.engine.Escape().Pause.Pause(target, opts)
	if errors.Is(err, escape.ErrAlreadyPaused) {
		return fail("already paused, resume first")
	}
	if err != nil {
		return fail("pause: %v", err)
	}
	what := "Protection paused"
	if target == escape.GlobalSessionID {
		what = "Protection paused for all sessions"
	}
	if rec.Indefinite() {
		return ok("%s until resumed", what)
	}
	return ok("%s for %s", what, rec.ExpiresAt.Sub(rec.PausedAt))
}

func (c *Console) resume(_ context.Context, sid string, args []string) Result {
	target, _ := scopeTarget(sid, args)
	d, err := c.engine.Escape().Pause.Resume(target)
	if errors.Is(err, escape.ErrNotPaused) {
		return fail("not paused")
	}
	if err != nil {
		return fail("resume: %v", err)
	}
	return ok("Protection resumed after %s", d.Round(time.Second))
}

func (c *Console) trust(_ context.Context, sid string, args []string) Result {
	target, args := scopeTarget(sid, args)
	tr := c.engine.Escape().Trust
	if len(args) == 0 {
		return ok("%s", formatTrust(tr.List(sid), tr.List(escape.GlobalSessionID)))
	}

	var opts escape.TrustOptions
	if len(args) > 1 {
		if lvl, err := escape.ParseTrustLevel(args[1]); err == nil {
			opts.Level = lvl
		} else if d, derr := ParseDuration(args[1]); derr == nil {
			opts.Level = escape.TrustTemporary
			opts.Duration = d
		} else {
			return fail("invalid trust level or duration %q", args[1])
		}
	}

	rec, err := tr.Trust(target, args[0], opts)
	switch {
	case errors.Is(err, escape.ErrAlreadyTrusted):
		return fail("%s is already trusted", escape.NormalizeToolName(args[0]))
	case errors.Is(err, escape.ErrPatternTooBroad):
		return fail("pattern %q is too broad", args[0])
	case err != nil:
		return fail("trust: %v", err)
	}
	msg := fmt.Sprintf("Trusted %s (%s)", rec.Name, rec.Level)
	if !rec.ExpiresAt.IsZero() {
		msg += " until " + rec.ExpiresAt.Format(time.RFC3339)
	}
	return ok("%s", msg)
}

func (c *Console) untrust(_ context.Context, sid string, args []string) Result {
	target, args := scopeTarget(sid, args)
	if len(args) == 0 {
		return fail("usage: untrust <name>")
	}
	if !c.engine.Escape().Trust.Revoke(target, args[0]) {
		return fail("%s is not trusted", escape.NormalizeToolName(args[0]))
	}
	return ok("Revoked trust for %s", escape.NormalizeToolName(args[0]))
}

func (c *Console) log(_ context.Context, sid string, args []string) Result {
	n := defaultLogCount
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fail("invalid count %q", args[0])
		}
		n = min(v, maxLogCount)
	}
	entries := c.engine.Audit().Query(audit.Filter{SessionID: sid, Limit: n})
	if len(entries) == 0 {
		return ok("No audit entries for this session.")
	}
	return ok("%s", strings.TrimRight(audit.FormatTable(entries), "\n"))
}

func (c *Console) help(context.Context, string, []string) Result {
	return ok("%s", helpText)
}

const helpText = `Commands:
  status                          show level, session activity and escapes
  level [off|watch|guard|shield]  show or change the protection level
  allow-once [output|tool|any]    let the next blocked action through
  pause [global] [duration|indefinite] [reason]
                                  suspend enforcement (default 5m)
  resume [global]                 end a pause
  trust [global] [name [level|duration]]
                                  list trusted tools or trust one
  untrust [global] <name>         revoke trust
  log [count]                     show recent audit entries
  help                            show this text`

// scopeTarget consumes a leading "global" argument.
func scopeTarget(sid string, args []string) (string, []string) {
	if len(args) > 0 && strings.EqualFold(args[0], "global") {
		return escape.GlobalSessionID, args[1:]
	}
	return sid, args
}

func formatTrust(session, global []escape.TrustRecord) string {
	if len(session)+len(global) == 0 {
		return "No trusted tools."
	}
	var b strings.Builder
	b.WriteString("Trusted tools:")
	for _, group := range []struct {
		label string
		recs  []escape.TrustRecord
	}{{"session", session}, {"global", global}} {
		for _, r := range group.recs {
			fmt.Fprintf(&b, "\n  %-24s %-10s %s", r.Name, r.Level, group.label)
		}
	}
	return b.String()
}

const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// ParseDuration accepts Go duration syntax or a bare number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		if n > maxDurationSeconds {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
