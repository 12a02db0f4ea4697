package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
)

// Config bounds the session store.
type Config struct {
	// MaxSessions caps live sessions. Zero means DefaultMaxSessions.
	MaxSessions int `yaml:"max_sessions"`
	// Timeout evicts sessions idle longer than this during Cleanup.
	Timeout time.Duration `yaml:"timeout"`
	// WindowSize is the recent threat window kept per session.
	WindowSize int `yaml:"window_size"`
}

const (
	DefaultMaxSessions = 10000
	DefaultTimeout     = time.Hour
)

// DefaultConfig returns the stock session limits.
func DefaultConfig() Config {
	return Config{
		MaxSessions: DefaultMaxSessions,
		Timeout:     DefaultTimeout,
		WindowSize:  DefaultWindowSize,
	}
}

// Summary describes a finished session.
type Summary struct {
	SessionID       string        `json:"session_id"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	Duration        time.Duration `json:"duration"`
	Success         bool          `json:"success"`
	MessageCount    int           `json:"message_count"`
	ToolCallCount   int           `json:"tool_call_count"`
	IssuesDetected  int           `json:"issues_detected"`
	ActionsBlocked  int           `json:"actions_blocked"`
	AlertsTriggered int           `json:"alerts_triggered"`
	MaxThreatLevel  int           `json:"max_threat_level"`
}

// AggregateStats sums counters across live sessions.
type AggregateStats struct {
	ActiveSessions  int `json:"active_sessions"`
	MessageCount    int `json:"message_count"`
	ToolCallCount   int `json:"tool_call_count"`
	IssuesDetected  int `json:"issues_detected"`
	ActionsBlocked  int `json:"actions_blocked"`
	AlertsTriggered int `json:"alerts_triggered"`
	MaxThreatLevel  int `json:"max_threat_level"`
}

// Manager owns every live session State.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*State
	onEvict  func(Summary)
}

// NewManager creates an empty manager. clk and logger may be nil.
func NewManager(cfg Config, clk clock.Clock, logger *slog.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		clock:    clock.OrReal(clk),
		logger:   logger,
		sessions: make(map[string]*State),
	}
}

// OnEvict registers fn to run, outside the store lock, for every session
// reclaimed by idle cleanup or capacity eviction. Evicted summaries have
// Success false. EndSession and Remove do not trigger it.
func (m *Manager) OnEvict(fn func(Summary)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// GetOrCreate returns the session's state, creating it on first use. created
// reports whether a new state was made. At capacity, idle sessions are
// cleaned up first and then the oldest session is evicted.
func (m *Manager) GetOrCreate(sessionID string) (st *State, created bool) {
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return st, false
	}

	m.mu.Lock()
	if st, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return st, false
	}
	var evicted []Summary
	if len(m.sessions) >= m.cfg.MaxSessions {
		evicted = m.cleanupLocked()
		if len(evicted) > 0 {
			m.logger.Debug("session cleanup at capacity", "evicted", len(evicted))
		}
		if len(m.sessions) >= m.cfg.MaxSessions {
			if sum, ok := m.evictOldestLocked(); ok {
				evicted = append(evicted, sum)
			}
		}
	}
	st = newState(sessionID, m.clock, m.cfg.WindowSize)
	m.sessions[sessionID] = st
	hook := m.onEvict
	m.mu.Unlock()

	m.notifyEvicted(hook, evicted)
	return st, true
}

// Get returns the session's state if it exists.
func (m *Manager) Get(sessionID string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[sessionID]
	return st, ok
}

// Has reports whether the session exists.
func (m *Manager) Has(sessionID string) bool {
	_, ok := m.Get(sessionID)
	return ok
}

// EndSession removes the session and summarizes it.
func (m *Manager) EndSession(sessionID string, success bool) (Summary, bool) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return Summary{}, false
	}

	return m.summarize(st, m.clock.Now(), success), true
}

// Remove drops the session without a summary.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok
}

// Cleanup evicts sessions idle longer than the configured timeout and
// returns how many were removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	evicted := m.cleanupLocked()
	hook := m.onEvict
	m.mu.Unlock()

	m.notifyEvicted(hook, evicted)
	return len(evicted)
}

// Sweep is Cleanup under the scheduler's signature.
func (m *Manager) Sweep() int { return m.Cleanup() }

// AggregateStats sums counters across every live session.
func (m *Manager) AggregateStats() AggregateStats {
	m.mu.RLock()
	states := make([]*State, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.RUnlock()

	agg := AggregateStats{ActiveSessions: len(states)}
	for _, st := range states {
		s := st.Snapshot()
		agg.MessageCount += s.MessageCount
		agg.ToolCallCount += s.ToolCallCount
		agg.IssuesDetected += s.IssuesDetected
		agg.ActionsBlocked += s.ActionsBlocked
		agg.AlertsTriggered += s.AlertsTriggered
		agg.MaxThreatLevel = max(agg.MaxThreatLevel, s.MaxThreatLevel)
	}
	return agg
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) summarize(st *State, now time.Time, success bool) Summary {
	snap := st.Snapshot()
	return Summary{
		SessionID:       snap.SessionID,
		StartedAt:       snap.StartedAt,
		EndedAt:         now,
		Duration:        now.Sub(snap.StartedAt),
		Success:         success,
		MessageCount:    snap.MessageCount,
		ToolCallCount:   snap.ToolCallCount,
		IssuesDetected:  snap.IssuesDetected,
		ActionsBlocked:  snap.ActionsBlocked,
		AlertsTriggered: snap.AlertsTriggered,
		MaxThreatLevel:  snap.MaxThreatLevel,
	}
}

func (m *Manager) notifyEvicted(hook func(Summary), evicted []Summary) {
	if hook == nil {
		return
	}
	for _, sum := range evicted {
		hook(sum)
	}
}

// caller holds m.mu
func (m *Manager) cleanupLocked() []Summary {
	now := m.clock.Now()
	cutoff := now.Add(-m.cfg.Timeout)
	var evicted []Summary
	for id, st := range m.sessions {
		if st.lastActive().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, m.summarize(st, now, false))
		}
	}
	return evicted
}

// caller holds m.mu
func (m *Manager) evictOldestLocked() (Summary, bool) {
	var (
		oldestID string
		oldest   *State
	)
	for id, st := range m.sessions {
		if oldest == nil || st.startedAt.Before(oldest.startedAt) {
			oldestID, oldest = id, st
		}
	}
	if oldest == nil {
		return Summary{}, false
	}
	delete(m.sessions, oldestID)
	m.logger.Warn("session store full, evicted oldest session", "session_id", oldestID)
	return m.summarize(oldest, m.clock.Now(), false), true
}
