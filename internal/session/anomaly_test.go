package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func snapshotWith(levels ...int) Snapshot {
	return Snapshot{
		SessionID:          "s1",
		MessageCount:       len(levels),
		RecentThreatLevels: levels,
		MaxThreatLevel:     maxOf(levels),
	}
}

func maxOf(xs []int) int {
	m := 0
	for _, x := range xs {
		m = max(m, x)
	}
	return m
}

func TestNoAnomalyBelowMinMessages(t *testing.T) {
	got := DetectAnomalies(snapshotWith(5, 5, 5, 5), DefaultAnomalyConfig())
	assert.False(t, got.Detected)

	got = DetectAnomalies(snapshotWith(5, 5, 5, 5, 5), DefaultAnomalyConfig())
	assert.True(t, got.Detected)
	assert.Equal(t, AnomalyHighThreatRate, got.Type)
}

func TestHighThreatRateFullConfidence(t *testing.T) {
	got := DetectAnomalies(snapshotWith(4, 4, 4, 4, 4, 4, 4, 4, 4, 4), DefaultAnomalyConfig())
	assert.True(t, got.Detected)
	assert.Equal(t, AnomalyHighThreatRate, got.Type)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestHighThreatRateJustAboveThreshold(t *testing.T) {
	got := DetectAnomalies(snapshotWith(4, 0, 4, 0, 4, 0, 4, 0, 0, 0), DefaultAnomalyConfig())
	assert.Equal(t, AnomalyHighThreatRate, got.Type)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestHighThreatRateAtThresholdDoesNotFire(t *testing.T) {
	snap := snapshotWith(0, 0, 0, 0, 4, 0, 4, 0, 4, 0)
	got := DetectAnomalies(snap, DefaultAnomalyConfig())
	assert.NotEqual(t, AnomalyHighThreatRate, got.Type)
}

func TestHighBlockRate(t *testing.T) {
	snap := snapshotWith(1, 1, 1, 1, 1)
	snap.ToolCallCount = 5
	snap.ActionsBlocked = 6

	got := DetectAnomalies(snap, DefaultAnomalyConfig())
	assert.True(t, got.Detected)
	assert.Equal(t, AnomalyHighBlockRate, got.Type)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

func TestEscalationPattern(t *testing.T) {
	levels := []int{0, 0, 1, 1, 1, 2, 3, 3, 3, 3}

	cfg := DefaultAnomalyConfig()
	cfg.EscalationThreshold = 1.5
	got := DetectAnomalies(snapshotWith(levels...), cfg)
	assert.True(t, got.Detected)
	assert.Equal(t, AnomalyEscalation, got.Type)
	assert.InDelta(t, 2.2/5, got.Confidence, 1e-9)
}

func TestEscalationBelowDefaultThreshold(t *testing.T) {
	levels := []int{0, 0, 1, 1, 1, 1, 2, 2, 2, 2}

	got := DetectAnomalies(snapshotWith(levels...), DefaultAnomalyConfig())
	assert.False(t, got.Detected)

	cfg := DefaultAnomalyConfig()
	cfg.EscalationThreshold = 1
	got = DetectAnomalies(snapshotWith(levels...), cfg)
	assert.Equal(t, AnomalyEscalation, got.Type)
}

func TestEscalationNeedsFullWindow(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	cfg.EscalationThreshold = 1
	got := DetectAnomalies(snapshotWith(0, 0, 0, 3, 3, 3), cfg)
	assert.NotEqual(t, AnomalyEscalation, got.Type)
}

func TestRepeatedAttacks(t *testing.T) {
	got := DetectAnomalies(snapshotWith(4, 4, 4, 0, 0, 0, 0, 0, 0, 0), DefaultAnomalyConfig())
	assert.True(t, got.Detected)
	assert.Equal(t, AnomalyRepeatedAttacks, got.Type)
	assert.InDelta(t, 0.6, got.Confidence, 1e-9)
}

func TestOnlyRecentWindowCounts(t *testing.T) {
	levels := []int{5, 5, 5, 5, 5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	snap := snapshotWith(levels...)

	got := DetectAnomalies(snap, DefaultAnomalyConfig())
	assert.False(t, got.Detected)
}

func TestFirstMatchWins(t *testing.T) {
	snap := snapshotWith(0, 0, 0, 0, 0, 5, 5, 5, 5, 5)
	snap.ActionsBlocked = 10

	got := DetectAnomalies(snap, DefaultAnomalyConfig())
	assert.Equal(t, AnomalyHighThreatRate, got.Type)
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	got := DetectAnomalies(snapshotWith(4, 4, 4, 4, 4), AnomalyConfig{})
	assert.Equal(t, AnomalyHighThreatRate, got.Type)
}
