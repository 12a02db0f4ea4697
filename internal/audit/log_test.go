package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/detect"
	"github.com/ppiankov/hookwarden/internal/escape"
	"github.com/ppiankov/hookwarden/internal/policy"
	"github.com/ppiankov/hookwarden/internal/session"
	"github.com/ppiankov/hookwarden/internal/validate"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memSink struct {
	entries []Entry
	err     error
	closed  bool
}

func (m *memSink) Write(e Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memSink) Close() error {
	m.closed = true
	return m.err
}

func TestLogAssignsIDAndTimestamp(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)

	e := l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, epoch, e.Timestamp)

	e2 := l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	assert.NotEqual(t, e.ID, e2.ID)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{MaxEntries: 3}, clk, nil)

	for i := 0; i < 5; i++ {
		l.Log(Entry{Event: EventInputAnalysis, Outcome: OutcomeAllowed, SessionID: string(rune('a' + i))})
		clk.Advance(time.Second)
	}

	got := l.Query(Filter{})
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].SessionID)
	assert.Equal(t, "c", got[2].SessionID)
}

func TestQueryFiltersNewestFirst(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{}, clk, nil)

	l.Log(Entry{Event: EventToolValidation, Outcome: OutcomeBlocked, SessionID: "s1"})
	clk.Advance(time.Second)
	l.Log(Entry{Event: EventToolValidation, Outcome: OutcomeAllowed, SessionID: "s1"})
	clk.Advance(time.Second)
	l.Log(Entry{Event: EventOutputValidation, Outcome: OutcomeBlocked, SessionID: "s2"})
	clk.Advance(time.Second)
	l.Log(Entry{Event: EventToolValidation, Outcome: OutcomeBlocked, SessionID: "s2"})

	got := l.Query(Filter{Event: EventToolValidation, Outcome: OutcomeBlocked})
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, "s1", got[1].SessionID)

	got = l.Query(Filter{SessionID: "s1"})
	assert.Len(t, got, 2)

	got = l.Query(Filter{Since: epoch.Add(2 * time.Second)})
	assert.Len(t, got, 2)

	got = l.Query(Filter{Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, epoch.Add(3*time.Second), got[0].Timestamp)
}

func TestRecent(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)
	for i := 0; i < 4; i++ {
		l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	}
	assert.Len(t, l.Recent(2), 2)
	assert.Nil(t, l.Recent(0))
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{EntryTTL: time.Minute}, clk, nil)

	l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	clk.Advance(45 * time.Second)
	l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	clk.Advance(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, l.Sweep())
}

func TestSweepWithoutTTL(t *testing.T) {
	clk := clock.NewFake(epoch)
	l := New(Config{}, clk, nil)
	l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	clk.Advance(1000 * time.Hour)
	assert.Equal(t, 0, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestStats(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)
	l.Log(Entry{Event: EventToolValidation, Outcome: OutcomeBlocked, SessionID: "s1"})
	l.Log(Entry{Event: EventToolValidation, Outcome: OutcomeAllowed, SessionID: "s1"})
	l.Log(Entry{Event: EventSessionStart, Outcome: OutcomeAllowed, SessionID: "s2"})
	l.Log(Entry{Event: EventError, Outcome: OutcomeError})

	st := l.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.ByEvent[EventToolValidation])
	assert.Equal(t, 2, st.ByOutcome[OutcomeAllowed])
	assert.Equal(t, 1, st.ByOutcome[OutcomeError])
	assert.Equal(t, 2, st.Sessions)
}

func TestClear(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)
	l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Query(Filter{}))
}

func TestSinkErrorsDoNotPropagate(t *testing.T) {
	failing := &memSink{err: errors.New("disk full")}
	ok := &memSink{}
	l := New(Config{}, clock.NewFake(epoch), nil, failing)
	l.AddSink(ok)

	e := l.Log(Entry{Event: EventError, Outcome: OutcomeError})
	assert.NotEmpty(t, e.ID)
	assert.Len(t, failing.entries, 1)
	require.Len(t, ok.entries, 1)
	assert.Equal(t, e, ok.entries[0])

	err := l.Close()
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, ok.closed)
}

func TestConvenienceMappings(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)

	blocked := validate.Result{
		ShouldBlock: true,
		ThreatLevel: 5,
		RiskLevel:   detect.SeverityCritical,
		Issues: []detect.Issue{
			{Type: detect.CategoryDestructiveCommand, Severity: detect.SeverityCritical},
			{Type: detect.CategoryDestructiveCommand, Severity: detect.SeverityHigh},
		},
		Reason: "destructive_command: rm",
	}
	e := l.LogToolValidation("s1", "bash", policy.LevelGuard, blocked)
	assert.Equal(t, EventToolValidation, e.Event)
	assert.Equal(t, OutcomeBlocked, e.Outcome)
	assert.Equal(t, "bash", e.Details.ToolName)
	assert.Equal(t, []string{"destructive_command"}, e.Details.Categories)
	assert.Equal(t, "guard", e.Details.Level)

	flagged := validate.Result{Issues: []detect.Issue{{Type: detect.CategorySuspiciousURL}}}
	assert.Equal(t, OutcomeAlerted, l.LogInputAnalysis("s1", policy.LevelWatch, flagged).Outcome)
	assert.Equal(t, OutcomeAllowed, l.LogOutputValidation("s1", policy.LevelWatch, validate.Result{Safe: true}).Outcome)

	e = l.LogSeedInjection("s1", policy.LevelShield, policy.SeedStrict)
	assert.Equal(t, EventSeedInjection, e.Event)
	assert.Equal(t, "strict", e.Details.Seed)

	assert.Equal(t, EventSessionStart, l.LogSessionStart("s1", policy.LevelGuard).Event)

	e = l.LogEscapeUsed("s1", escape.MechanismAllowOnce, "bash", "blocked: rm")
	assert.Equal(t, OutcomeAllowed, e.Outcome)
	assert.Equal(t, "allow_once", e.Details.Mechanism)

	e = l.LogError("s1", "before_tool_call", errors.New("boom"))
	assert.Equal(t, OutcomeError, e.Outcome)
	assert.Equal(t, "boom", e.Details.Error)
}

func TestLogSessionEnd(t *testing.T) {
	l := New(Config{}, clock.NewFake(epoch), nil)
	sum := session.Summary{
		SessionID:      "s1",
		Duration:       2 * time.Second,
		Success:        false,
		MessageCount:   10,
		ToolCallCount:  5,
		ActionsBlocked: 2,
		MaxThreatLevel: 4,
	}

	e := l.LogSessionEnd(sum, session.Anomaly{})
	assert.Equal(t, OutcomeAllowed, e.Outcome)
	require.NotNil(t, e.Details.Success)
	assert.False(t, *e.Details.Success)
	assert.Equal(t, int64(2000), e.Details.DurationMS)
	assert.Equal(t, 10, e.Details.Messages)

	e = l.LogSessionEnd(sum, session.Anomaly{Detected: true, Type: session.AnomalyHighThreatRate, Confidence: 1})
	assert.Equal(t, OutcomeAlerted, e.Outcome)
	assert.Equal(t, "high_threat_rate", e.Details.Anomaly)
}
