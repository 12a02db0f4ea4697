package session

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hookwarden/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRecordMessageReceived(t *testing.T) {
	st := newState("s1", clock.NewFake(epoch), 10)

	st.RecordMessageReceived(2)
	st.RecordMessageReceived(4)
	st.RecordMessageReceived(1)

	snap := st.Snapshot()
	assert.Equal(t, 3, snap.MessageCount)
	assert.Equal(t, 4, snap.MaxThreatLevel)
	assert.Equal(t, []int{2, 4, 1}, snap.RecentThreatLevels)
}

func TestThreatLevelClamped(t *testing.T) {
	st := newState("s1", clock.NewFake(epoch), 10)

	st.RecordMessageReceived(9)
	st.RecordMessageReceived(-3)

	snap := st.Snapshot()
	assert.Equal(t, 5, snap.MaxThreatLevel)
	assert.Equal(t, []int{5, 0}, snap.RecentThreatLevels)
}

func TestWindowTrimsAtTwiceSize(t *testing.T) {
	st := newState("s1", clock.NewFake(epoch), 3)

	for i := 0; i < 6; i++ {
		st.RecordMessageReceived(i % 6)
	}
	assert.Len(t, st.Snapshot().RecentThreatLevels, 6)

	st.RecordMessageReceived(1)
	assert.Equal(t, []int{4, 5, 1}, st.Snapshot().RecentThreatLevels)
}

func TestRecordToolAndOutput(t *testing.T) {
	st := newState("s1", clock.NewFake(epoch), 10)

	st.RecordToolCall(true, 2)
	st.RecordToolCall(false, 0)
	st.RecordOutputValidation(true, 1)
	st.RecordAlert()

	snap := st.Snapshot()
	assert.Equal(t, 2, snap.ToolCallCount)
	assert.Equal(t, 0, snap.MessageCount)
	assert.Equal(t, 3, snap.IssuesDetected)
	assert.Equal(t, 2, snap.ActionsBlocked)
	assert.Equal(t, 1, snap.AlertsTriggered)
}

func TestSnapshotIsACopy(t *testing.T) {
	st := newState("s1", clock.NewFake(epoch), 10)
	st.RecordMessageReceived(3)

	snap := st.Snapshot()
	snap.RecentThreatLevels[0] = 0
	require.Equal(t, []int{3}, st.Snapshot().RecentThreatLevels)
}

func TestMaxThreatLevelMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("max threat level never decreases", prop.ForAll(
		func(levels []int) bool {
			st := newState("p", clock.NewFake(epoch), DefaultWindowSize)
			prev := 0
			for _, l := range levels {
				st.RecordMessageReceived(l)
				cur := st.Snapshot().MaxThreatLevel
				if cur < prev || cur > 5 {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-2, 8)),
	))

	properties.Property("recent window stays within twice its size", prop.ForAll(
		func(levels []int, window int) bool {
			st := newState("p", clock.NewFake(epoch), window)
			for _, l := range levels {
				st.RecordMessageReceived(l)
				if len(st.Snapshot().RecentThreatLevels) > 2*window {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
