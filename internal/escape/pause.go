package escape

import (
	"strings"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
)

const (
	// MinPauseDuration keeps pauses from churning.
	MinPauseDuration = 10 * time.Second
	// MaxPauseDuration caps timed pauses; use Indefinite for longer.
	MaxPauseDuration = 24 * time.Hour
	// DefaultPauseDuration applies when neither Duration nor Indefinite is set.
	DefaultPauseDuration = 5 * time.Minute
)

// PauseRecord is an active pause. A zero ExpiresAt means indefinite.
type PauseRecord struct {
	SessionID string    `json:"session_id"`
	PausedAt  time.Time `json:"paused_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Reason    string    `json:"reason,omitempty"`
}

// Indefinite reports whether the pause has no expiry.
func (r PauseRecord) Indefinite() bool {
	return r.ExpiresAt.IsZero()
}

func (r PauseRecord) activeAt(now time.Time) bool {
	return r.Indefinite() || now.Before(r.ExpiresAt)
}

// PauseOptions configures Pause.Pause.
type PauseOptions struct {
	Duration   time.Duration
	Indefinite bool
	Reason     string
}

// Pause suspends enforcement per session, or for every session through
// GlobalSessionID.
type Pause struct {
	clock   clock.Clock
	records *shardedMap[PauseRecord]
}

// NewPause creates an empty manager. clk may be nil.
func NewPause(clk clock.Clock) *Pause {
	return &Pause{clock: clock.OrReal(clk), records: newShardedMap[PauseRecord]()}
}

// Pause starts a pause for sessionID. Fails with ErrAlreadyPaused while one is
// active for the same id.
func (p *Pause) Pause(sessionID string, opts PauseOptions) (PauseRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return PauseRecord{}, ErrInvalidSession
	}
	if opts.Duration < 0 {
		return PauseRecord{}, ErrInvalidDuration
	}

	now := p.clock.Now()
	rec := PauseRecord{SessionID: sessionID, PausedAt: now, Reason: opts.Reason}
	if !opts.Indefinite {
		d := opts.Duration
		switch {
		case d == 0:
			d = DefaultPauseDuration
		case d < MinPauseDuration:
			d = MinPauseDuration
		case d > MaxPauseDuration:
			d = MaxPauseDuration
		}
		rec.ExpiresAt = now.Add(d)
	}

	var err error
	p.records.update(sessionID, func(cur PauseRecord, ok bool) (PauseRecord, bool) {
		if ok && cur.activeAt(now) {
			err = ErrAlreadyPaused
			return cur, true
		}
		return rec, true
	})
	if err != nil {
		return PauseRecord{}, err
	}
	return rec, nil
}

// PauseGlobal pauses every session.
func (p *Pause) PauseGlobal(opts PauseOptions) (PauseRecord, error) {
	return p.Pause(GlobalSessionID, opts)
}

// Resume ends the pause for sessionID and returns how long it lasted.
// Resuming a session does not lift a global pause.
func (p *Pause) Resume(sessionID string) (time.Duration, error) {
	now := p.clock.Now()
	var (
		paused time.Duration
		err    error
	)
	p.records.update(sessionID, func(cur PauseRecord, ok bool) (PauseRecord, bool) {
		if !ok || !cur.activeAt(now) {
			err = ErrNotPaused
			return cur, false
		}
		paused = now.Sub(cur.PausedAt)
		return cur, false
	})
	return paused, err
}

// ResumeGlobal ends the global pause.
func (p *Pause) ResumeGlobal() (time.Duration, error) {
	return p.Resume(GlobalSessionID)
}

// IsPaused reports whether sessionID or the global id is paused.
func (p *Pause) IsPaused(sessionID string) bool {
	_, ok := p.active(sessionID)
	return ok
}

// Remaining returns the time left on the pause that applies to sessionID.
// indefinite is true when the applicable pause never expires; remaining is
// zero when nothing is paused.
func (p *Pause) Remaining(sessionID string) (remaining time.Duration, indefinite bool) {
	rec, ok := p.active(sessionID)
	if !ok {
		return 0, false
	}
	if rec.Indefinite() {
		return 0, true
	}
	return rec.ExpiresAt.Sub(p.clock.Now()), false
}

// Get returns the active record stored under sessionID itself.
func (p *Pause) Get(sessionID string) (PauseRecord, bool) {
	rec, ok := p.records.get(sessionID)
	if !ok || !rec.activeAt(p.clock.Now()) {
		return PauseRecord{}, false
	}
	return rec, true
}

// Clear drops the session's pause without reporting duration.
func (p *Pause) Clear(sessionID string) bool {
	return p.records.delete(sessionID)
}

// Sweep removes expired pauses.
func (p *Pause) Sweep() int {
	now := p.clock.Now()
	return p.records.sweep(func(_ string, rec PauseRecord) (PauseRecord, bool) {
		return rec, rec.activeAt(now)
	})
}

// active returns the session pause, else the global pause.
func (p *Pause) active(sessionID string) (PauseRecord, bool) {
	if rec, ok := p.Get(sessionID); ok {
		return rec, true
	}
	if sessionID != GlobalSessionID {
		return p.Get(GlobalSessionID)
	}
	return PauseRecord{}, false
}
