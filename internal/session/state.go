// Package session tracks per-session counters and recent threat levels, and
// scores them for anomalies when a session ends.
package session

import (
	"sync"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/detect"
)

// State is the mutable record of one session. All methods are safe for
// concurrent use.
type State struct {
	mu sync.Mutex

	id        string
	startedAt time.Time
	clock     clock.Clock
	window    int

	lastActivity    time.Time
	messageCount    int
	toolCallCount   int
	issuesDetected  int
	actionsBlocked  int
	alertsTriggered int
	maxThreatLevel  int
	recent          []int
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	SessionID          string    `json:"session_id"`
	StartedAt          time.Time `json:"started_at"`
	LastActivity       time.Time `json:"last_activity"`
	MessageCount       int       `json:"message_count"`
	ToolCallCount      int       `json:"tool_call_count"`
	IssuesDetected     int       `json:"issues_detected"`
	ActionsBlocked     int       `json:"actions_blocked"`
	AlertsTriggered    int       `json:"alerts_triggered"`
	MaxThreatLevel     int       `json:"max_threat_level"`
	RecentThreatLevels []int     `json:"recent_threat_levels"`
}

func newState(id string, clk clock.Clock, window int) *State {
	now := clk.Now()
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &State{
		id:           id,
		startedAt:    now,
		lastActivity: now,
		clock:        clk,
		window:       window,
	}
}

// ID returns the session id.
func (s *State) ID() string { return s.id }

// StartedAt returns the creation time.
func (s *State) StartedAt() time.Time { return s.startedAt }

// RecordMessageReceived counts an inbound message scored at level. The level
// is clamped to 0..5 and the max threat level only ever rises.
func (s *State) RecordMessageReceived(level int) {
	level = detect.ClampThreat(level)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.messageCount++
	if level > s.maxThreatLevel {
		s.maxThreatLevel = level
	}
	s.recent = append(s.recent, level)
	if len(s.recent) > 2*s.window {
		trimmed := make([]int, s.window)
		copy(trimmed, s.recent[len(s.recent)-s.window:])
		s.recent = trimmed
	}
}

// RecordToolCall counts a validated tool call.
func (s *State) RecordToolCall(blocked bool, issues int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.toolCallCount++
	s.recordIssues(blocked, issues)
}

// RecordOutputValidation counts a validated outgoing message.
func (s *State) RecordOutputValidation(blocked bool, issues int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.recordIssues(blocked, issues)
}

// RecordAlert counts an alert raised for the session.
func (s *State) RecordAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsTriggered++
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:          s.id,
		StartedAt:          s.startedAt,
		LastActivity:       s.lastActivity,
		MessageCount:       s.messageCount,
		ToolCallCount:      s.toolCallCount,
		IssuesDetected:     s.issuesDetected,
		ActionsBlocked:     s.actionsBlocked,
		AlertsTriggered:    s.alertsTriggered,
		MaxThreatLevel:     s.maxThreatLevel,
		RecentThreatLevels: append([]int(nil), s.recent...),
	}
}

func (s *State) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// caller holds s.mu
func (s *State) touch() {
	s.lastActivity = s.clock.Now()
}

// caller holds s.mu
func (s *State) recordIssues(blocked bool, issues int) {
	if issues > 0 {
		s.issuesDetected += issues
	}
	if blocked {
		s.actionsBlocked++
	}
}
