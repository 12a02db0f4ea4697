package escape

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/hookwarden/internal/clock"
)

const (
	// DefaultAllowOnceExpiration applies when GrantOptions.Expiration is zero.
	DefaultAllowOnceExpiration = 60 * time.Second
	// MaxAllowOnceExpiration caps every allow-once token.
	MaxAllowOnceExpiration = 5 * time.Minute
)

// Scope limits what an allow-once token may unblock.
type Scope string

const (
	ScopeOutput Scope = "output"
	ScopeTool   Scope = "tool"
	ScopeAny    Scope = "any"
)

// ParseScope maps a name to a Scope. Empty means any.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeAny, nil
	case ScopeOutput, ScopeTool, ScopeAny:
		return sc, nil
	default:
		return "", fmt.Errorf("%w: %q (want output, tool or any)", ErrInvalidScope, s)
	}
}

// covers reports whether a token of scope s may be used for want.
func (s Scope) covers(want Scope) bool {
	return s == ScopeAny || s == want
}

// Token is a single-use permission to pass one blocked action.
type Token struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Scope     Scope     `json:"scope"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UsedAt    time.Time `json:"used_at,omitzero"`
	UsedFor   string    `json:"used_for,omitempty"`
}

// IsActive reports whether the token is unused and unexpired at now.
func (t Token) IsActive(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// GrantOptions configures AllowOnce.Grant.
type GrantOptions struct {
	// Scope defaults to any.
	Scope Scope
	// Expiration defaults to DefaultAllowOnceExpiration and is clamped to
	// [0, MaxAllowOnceExpiration].
	Expiration time.Duration
}

// CheckResult is the outcome of AllowOnce.Check.
type CheckResult struct {
	Available bool
	Reason    error
}

// AllowOnce holds at most one token per session id.
type AllowOnce struct {
	clock  clock.Clock
	tokens *shardedMap[Token]
}

// NewAllowOnce creates an empty manager. clk may be nil.
func NewAllowOnce(clk clock.Clock) *AllowOnce {
	return &AllowOnce{clock: clock.OrReal(clk), tokens: newShardedMap[Token]()}
}

// Grant issues a token for sessionID, replacing any previous token.
func (a *AllowOnce) Grant(sessionID string, opts GrantOptions) (Token, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Token{}, ErrInvalidSession
	}
	scope, err := ParseScope(string(opts.Scope))
	if err != nil {
		return Token{}, err
	}

	exp := opts.Expiration
	switch {
	case exp == 0:
		exp = DefaultAllowOnceExpiration
	case exp < 0:
		exp = 0
	case exp > MaxAllowOnceExpiration:
		exp = MaxAllowOnceExpiration
	}

	now := a.clock.Now()
	tok := Token{
		ID:        "ao-" + uuid.NewString(),
		SessionID: sessionID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(exp),
	}
	a.tokens.update(sessionID, func(Token, bool) (Token, bool) {
		return tok, true
	})
	return tok, nil
}

// Check reports whether a token for scope is available without consuming it.
// A used token counts as absent.
func (a *AllowOnce) Check(sessionID string, scope Scope) CheckResult {
	if scope == "" {
		scope = ScopeAny
	}
	tok, ok := a.tokens.get(sessionID)
	if !ok || tok.Used {
		return CheckResult{Reason: ErrNoToken}
	}
	if !a.clock.Now().Before(tok.ExpiresAt) {
		return CheckResult{Reason: ErrExpired}
	}
	if !tok.Scope.covers(scope) {
		return CheckResult{Reason: ErrWrongScope}
	}
	return CheckResult{Available: true}
}

// Use consumes the session's token for scope. A token is consumed exactly
// once: later calls fail with ErrAlreadyUsed and leave UsedFor unchanged.
// A scope mismatch fails with ErrWrongScope and leaves the token intact.
func (a *AllowOnce) Use(sessionID string, scope Scope, description string) error {
	if scope == "" {
		scope = ScopeAny
	}
	var result error
	now := a.clock.Now()
	a.tokens.update(sessionID, func(tok Token, ok bool) (Token, bool) {
		switch {
		case !ok:
			result = ErrNoToken
			return tok, false
		case tok.Used:
			result = ErrAlreadyUsed
		case !now.Before(tok.ExpiresAt):
			result = ErrExpired
		case !tok.Scope.covers(scope):
			result = ErrWrongScope
		default:
			tok.Used = true
			tok.UsedAt = now
			tok.UsedFor = description
		}
		return tok, true
	})
	return result
}

// Active reports whether the session holds an unused, unexpired token of any
// scope.
func (a *AllowOnce) Active(sessionID string) bool {
	tok, ok := a.tokens.get(sessionID)
	return ok && tok.IsActive(a.clock.Now())
}

// Revoke removes the session's token. Returns false if none existed.
func (a *AllowOnce) Revoke(sessionID string) bool {
	return a.tokens.delete(sessionID)
}

// Get returns the session's token, used or not, if it has not been swept.
func (a *AllowOnce) Get(sessionID string) (Token, bool) {
	return a.tokens.get(sessionID)
}

// Sweep removes expired and used tokens.
func (a *AllowOnce) Sweep() int {
	now := a.clock.Now()
	return a.tokens.sweep(func(_ string, tok Token) (Token, bool) {
		return tok, tok.IsActive(now)
	})
}

// Len returns the number of stored tokens.
func (a *AllowOnce) Len() int {
	return a.tokens.len()
}
