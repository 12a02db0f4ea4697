// Package audit keeps a bounded in-memory trail of enforcement decisions and
// fans every entry out to durable sinks.
package audit

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/hookwarden/internal/clock"
)

// DefaultMaxEntries bounds the in-memory trail when Config.MaxEntries is zero.
const DefaultMaxEntries = 10000

// Config bounds the in-memory trail.
type Config struct {
	MaxEntries int           `yaml:"max_entries"`
	EntryTTL   time.Duration `yaml:"entry_ttl"`
}

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	Event     Event
	Outcome   Outcome
	SessionID string
	Since     time.Time
	Limit     int
}

func (f Filter) match(e Entry) bool {
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Stats summarizes the entries currently held.
type Stats struct {
	Total     int             `json:"total"`
	ByEvent   map[Event]int   `json:"by_event"`
	ByOutcome map[Outcome]int `json:"by_outcome"`
	Sessions  int             `json:"sessions"`
	Oldest    time.Time       `json:"oldest,omitzero"`
	Newest    time.Time       `json:"newest,omitzero"`
}

// Log is the in-memory audit trail. Safe for concurrent use.
type Log struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries []Entry

	sinkMu sync.Mutex
	sinks  []Sink
}

// New creates a Log. clk and logger may be nil.
func New(cfg Config, clk clock.Clock, logger *slog.Logger, sinks ...Sink) *Log {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		cfg:    cfg,
		clock:  clock.OrReal(clk),
		logger: logger,
		sinks:  sinks,
	}
}

// AddSink attaches another sink.
func (l *Log) AddSink(s Sink) {
	l.sinkMu.Lock()
	l.sinks = append(l.sinks, s)
	l.sinkMu.Unlock()
}

// Log stores e with a fresh id and timestamp, evicting the oldest entry when
// full, and returns the stored entry.
func (l *Log) Log(e Entry) Entry {
	e.ID = uuid.NewString()

	l.mu.Lock()
	e.Timestamp = l.clock.Now()
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.cfg.MaxEntries; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	l.mu.Unlock()

	l.sinkMu.Lock()
	for _, s := range l.sinks {
		if err := s.Write(e); err != nil {
			l.logger.Error("audit sink write failed", "event", e.Event, "error", err)
		}
	}
	l.sinkMu.Unlock()
	return e
}

// Query returns matching entries, newest first.
func (l *Log) Query(f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if !f.match(l.entries[i]) {
			continue
		}
		out = append(out, l.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Recent returns the last n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	if n <= 0 {
		return nil
	}
	return l.Query(Filter{Limit: n})
}

// Stats aggregates totals by event and outcome.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{
		Total:     len(l.entries),
		ByEvent:   make(map[Event]int),
		ByOutcome: make(map[Outcome]int),
	}
	sessions := make(map[string]struct{})
	for _, e := range l.entries {
		st.ByEvent[e.Event]++
		st.ByOutcome[e.Outcome]++
		if e.SessionID != "" {
			sessions[e.SessionID] = struct{}{}
		}
	}
	st.Sessions = len(sessions)
	if len(l.entries) > 0 {
		st.Oldest = l.entries[0].Timestamp
		st.Newest = l.entries[len(l.entries)-1].Timestamp
	}
	return st
}

// Sweep drops entries older than EntryTTL. A zero TTL keeps everything.
func (l *Log) Sweep() int {
	if l.cfg.EntryTTL <= 0 {
		return 0
	}
	cutoff := l.clock.Now().Add(-l.cfg.EntryTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	// entries are in timestamp order
	keep := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].Timestamp.Before(cutoff)
	})
	if keep == 0 {
		return 0
	}
	l.entries = append(l.entries[:0:0], l.entries[keep:]...)
	return keep
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear drops every in-memory entry. Sinks are untouched.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Close closes every sink.
func (l *Log) Close() error {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	var errs []error
	for _, s := range l.sinks {
		errs = append(errs, s.Close())
	}
	l.sinks = nil
	return errors.Join(errs...)
}
