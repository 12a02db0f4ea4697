package escape

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
)

// TrustLevel controls how long a trust record lives.
type TrustLevel string

const (
	// TrustPermanent survives session end.
	TrustPermanent TrustLevel = "permanent"
	// TrustSession lasts until the session ends.
	TrustSession TrustLevel = "session"
	// TrustTemporary expires after a duration.
	TrustTemporary TrustLevel = "temporary"
)

// ParseTrustLevel maps a name to a TrustLevel. Empty means session.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch l := TrustLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return TrustSession, nil
	case TrustPermanent, TrustSession, TrustTemporary:
		return l, nil
	default:
		return "", fmt.Errorf("invalid trust level %q", s)
	}
}

// MatchType tells how a tool name matched a trust record.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPattern MatchType = "pattern"
)

// TrustRecord marks a tool name or wildcard pattern as trusted.
type TrustRecord struct {
	Name      string     `json:"name"`
	Level     TrustLevel `json:"level"`
	SessionID string     `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
	IsPattern bool       `json:"is_pattern"`
}

func (r TrustRecord) activeAt(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// TrustOptions configures Trust.Trust.
type TrustOptions struct {
	// Level defaults to session.
	Level TrustLevel
	// Duration is required for temporary trust and ignored otherwise.
	Duration time.Duration
}

// TrustMatch is the outcome of IsTrusted.
type TrustMatch struct {
	Trusted   bool
	MatchType MatchType
	Record    TrustRecord
}

// Trust records trusted tool names per session and globally.
type Trust struct {
	clock   clock.Clock
	records *shardedMap[map[string]TrustRecord]
}

// NewTrust creates an empty manager. clk may be nil.
func NewTrust(clk clock.Clock) *Trust {
	return &Trust{clock: clock.OrReal(clk), records: newShardedMap[map[string]TrustRecord]()}
}

// NormalizeToolName trims and lowercases a tool name.
func NormalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// validateName normalizes name and reports whether it is a pattern.
func validateName(name string) (string, bool, error) {
	n := NormalizeToolName(name)
	if n == "" {
		return "", false, ErrInvalidToolName
	}
	if strings.Trim(n, "*") == "" {
		return "", false, ErrPatternTooBroad
	}
	return n, strings.Contains(n, "*"), nil
}

// Trust marks name as trusted for sessionID.
func (t *Trust) Trust(sessionID, name string, opts TrustOptions) (TrustRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return TrustRecord{}, ErrInvalidSession
	}
	n, isPattern, err := validateName(name)
	if err != nil {
		return TrustRecord{}, err
	}
	level, err := ParseTrustLevel(string(opts.Level))
	if err != nil {
		return TrustRecord{}, err
	}

	now := t.clock.Now()
	rec := TrustRecord{
		Name:      n,
		Level:     level,
		SessionID: sessionID,
		CreatedAt: now,
		IsPattern: isPattern,
	}
	if level == TrustTemporary {
		if opts.Duration <= 0 {
			return TrustRecord{}, ErrInvalidDuration
		}
		rec.ExpiresAt = now.Add(opts.Duration)
	}

	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		if !ok {
			m = make(map[string]TrustRecord)
		}
		if cur, exists := m[n]; exists && cur.activeAt(now) {
			err = ErrAlreadyTrusted
			return m, len(m) > 0
		}
		m[n] = rec
		return m, true
	})
	if err != nil {
		return TrustRecord{}, err
	}
	return rec, nil
}

// TrustGlobal marks name as trusted for every session.
func (t *Trust) TrustGlobal(name string, opts TrustOptions) (TrustRecord, error) {
	return t.Trust(GlobalSessionID, name, opts)
}

// Revoke removes one trust record. Returns false if it did not exist.
func (t *Trust) Revoke(sessionID, name string) bool {
	n := NormalizeToolName(name)
	removed := false
	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		if !ok {
			return m, false
		}
		if _, exists := m[n]; exists {
			delete(m, n)
			removed = true
		}
		return m, len(m) > 0
	})
	return removed
}

// RevokeAll removes every trust record for sessionID and returns the count.
func (t *Trust) RevokeAll(sessionID string) int {
	count := 0
	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		count = len(m)
		return m, false
	})
	return count
}

// ClearSession drops session and temporary trust for sessionID at session
// end. Permanent records stay.
func (t *Trust) ClearSession(sessionID string) int {
	count := 0
	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		if !ok {
			return m, false
		}
		for name, rec := range m {
			if rec.Level != TrustPermanent {
				delete(m, name)
				count++
			}
		}
		return m, len(m) > 0
	})
	return count
}

// IsTrusted checks session exact, session pattern, global exact, then global
// pattern records, in that order.
func (t *Trust) IsTrusted(sessionID, name string) TrustMatch {
	n := NormalizeToolName(name)
	if n == "" {
		return TrustMatch{}
	}
	now := t.clock.Now()
	if m := t.lookup(sessionID, n, now); m.Trusted {
		return m
	}
	if sessionID != GlobalSessionID {
		return t.lookup(GlobalSessionID, n, now)
	}
	return TrustMatch{}
}

func (t *Trust) lookup(sessionID, name string, now time.Time) TrustMatch {
	var match TrustMatch
	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		if !ok {
			return m, false
		}
		if rec, exists := m[name]; exists && !rec.IsPattern && rec.activeAt(now) {
			match = TrustMatch{Trusted: true, MatchType: MatchExact, Record: rec}
			return m, true
		}
		for _, rec := range sortedRecords(m) {
			if rec.IsPattern && rec.activeAt(now) && MatchPatternName(rec.Name, name) {
				match = TrustMatch{Trusted: true, MatchType: MatchPattern, Record: rec}
				break
			}
		}
		return m, true
	})
	return match
}

// List returns the active records stored under sessionID, sorted by name.
func (t *Trust) List(sessionID string) []TrustRecord {
	now := t.clock.Now()
	var out []TrustRecord
	t.records.update(sessionID, func(m map[string]TrustRecord, ok bool) (map[string]TrustRecord, bool) {
		if !ok {
			return m, false
		}
		for _, rec := range sortedRecords(m) {
			if rec.activeAt(now) {
				out = append(out, rec)
			}
		}
		return m, true
	})
	return out
}

// Sweep removes expired temporary trust.
func (t *Trust) Sweep() int {
	now := t.clock.Now()
	expired := 0
	t.records.sweep(func(_ string, m map[string]TrustRecord) (map[string]TrustRecord, bool) {
		for name, rec := range m {
			if !rec.activeAt(now) {
				delete(m, name)
				expired++
			}
		}
		return m, len(m) > 0
	})
	return expired
}

func sortedRecords(m map[string]TrustRecord) []TrustRecord {
	out := make([]TrustRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MatchPatternName matches name against a pattern where each * matches any
// run of characters, including an empty one.
func MatchPatternName(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}

	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	rest := name[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, mid := range parts[1 : len(parts)-1] {
		if mid == "" {
			continue
		}
		idx := strings.Index(rest, mid)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(mid):]
	}
	return len(rest) >= len(last) && strings.HasSuffix(rest, last)
}
