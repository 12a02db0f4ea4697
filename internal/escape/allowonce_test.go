package escape

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantDefaults(t *testing.T) {
	clk := newFakeClock()
	a := NewAllowOnce(clk)

	tok, err := a.Grant("s1", GrantOptions{})
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, tok.Scope)
	assert.Equal(t, epoch.Add(DefaultAllowOnceExpiration), tok.ExpiresAt)
	assert.Contains(t, tok.ID, "ao-")
	assert.False(t, tok.Used)
}

func TestGrantClampsExpiration(t *testing.T) {
	a := NewAllowOnce(newFakeClock())

	tok, err := a.Grant("s1", GrantOptions{Expiration: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(MaxAllowOnceExpiration), tok.ExpiresAt)

	tok, err = a.Grant("s1", GrantOptions{Expiration: -time.Second})
	require.NoError(t, err)
	assert.Equal(t, epoch, tok.ExpiresAt)
	assert.ErrorIs(t, a.Check("s1", ScopeAny).Reason, ErrExpired)
}

func TestGrantRejectsInvalidInput(t *testing.T) {
	a := NewAllowOnce(newFakeClock())

	_, err := a.Grant("s1", GrantOptions{Scope: "everything"})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = a.Grant("  ", GrantOptions{})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestGrantReplacesExistingToken(t *testing.T) {
	a := NewAllowOnce(newFakeClock())

	first, err := a.Grant("s1", GrantOptions{Scope: ScopeOutput})
	require.NoError(t, err)
	second, err := a.Grant("s1", GrantOptions{Scope: ScopeTool})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, a.Len())

	got, ok := a.Get("s1")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.ErrorIs(t, a.Check("s1", ScopeOutput).Reason, ErrWrongScope)
	assert.True(t, a.Check("s1", ScopeTool).Available)
}

func TestCheckReasons(t *testing.T) {
	clk := newFakeClock()
	a := NewAllowOnce(clk)

	assert.ErrorIs(t, a.Check("s1", ScopeAny).Reason, ErrNoToken)

	_, err := a.Grant("s1", GrantOptions{Scope: ScopeOutput, Expiration: 30 * time.Second})
	require.NoError(t, err)
	assert.True(t, a.Check("s1", ScopeOutput).Available)
	assert.ErrorIs(t, a.Check("s1", ScopeTool).Reason, ErrWrongScope)

	clk.Advance(31 * time.Second)
	assert.ErrorIs(t, a.Check("s1", ScopeOutput).Reason, ErrExpired)
}

func TestAnyScopeCoversEverything(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	_, err := a.Grant("s1", GrantOptions{Scope: ScopeAny})
	require.NoError(t, err)

	assert.True(t, a.Check("s1", ScopeOutput).Available)
	assert.True(t, a.Check("s1", ScopeTool).Available)
}

func TestUseIsExactlyOnce(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	_, err := a.Grant("s1", GrantOptions{})
	require.NoError(t, err)

	require.NoError(t, a.Use("s1", ScopeTool, "tool:bash"))
	assert.ErrorIs(t, a.Use("s1", ScopeTool, "tool:rm"), ErrAlreadyUsed)

	tok, ok := a.Get("s1")
	require.True(t, ok)
	assert.True(t, tok.Used)
	assert.Equal(t, "tool:bash", tok.UsedFor)
	assert.Equal(t, epoch, tok.UsedAt)

	assert.ErrorIs(t, a.Check("s1", ScopeTool).Reason, ErrNoToken)
}

func TestUseWrongScopeDoesNotConsume(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	_, err := a.Grant("s1", GrantOptions{Scope: ScopeOutput})
	require.NoError(t, err)

	assert.ErrorIs(t, a.Use("s1", ScopeTool, "tool:x"), ErrWrongScope)
	tok, _ := a.Get("s1")
	assert.False(t, tok.Used)

	assert.NoError(t, a.Use("s1", ScopeOutput, "output"))
}

func TestUseExpiredAndMissing(t *testing.T) {
	clk := newFakeClock()
	a := NewAllowOnce(clk)

	assert.ErrorIs(t, a.Use("s1", ScopeAny, "x"), ErrNoToken)

	_, err := a.Grant("s1", GrantOptions{Expiration: 10 * time.Second})
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	assert.ErrorIs(t, a.Use("s1", ScopeAny, "x"), ErrExpired)
}

func TestNewGrantInvalidatesUnusedToken(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	_, err := a.Grant("s1", GrantOptions{Scope: ScopeOutput})
	require.NoError(t, err)
	_, err = a.Grant("s1", GrantOptions{Scope: ScopeTool})
	require.NoError(t, err)

	assert.ErrorIs(t, a.Use("s1", ScopeOutput, "output"), ErrWrongScope)
}

func TestRevoke(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	assert.False(t, a.Revoke("s1"))

	_, err := a.Grant("s1", GrantOptions{})
	require.NoError(t, err)
	assert.True(t, a.Revoke("s1"))
	assert.ErrorIs(t, a.Check("s1", ScopeAny).Reason, ErrNoToken)
}

func TestAllowOnceSweepRemovesUsedAndExpired(t *testing.T) {
	clk := newFakeClock()
	a := NewAllowOnce(clk)

	_, _ = a.Grant("used", GrantOptions{})
	require.NoError(t, a.Use("used", ScopeAny, "x"))
	_, _ = a.Grant("expiring", GrantOptions{Expiration: 5 * time.Second})
	_, _ = a.Grant("live", GrantOptions{Expiration: time.Minute})

	clk.Advance(6 * time.Second)
	assert.Equal(t, 2, a.Sweep())
	assert.Equal(t, 1, a.Len())
	assert.True(t, a.Active("live"))
}

func TestConcurrentUseConsumesOnce(t *testing.T) {
	a := NewAllowOnce(newFakeClock())
	_, err := a.Grant("s1", GrantOptions{})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Use("s1", ScopeAny, "race") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, s)

	s, err = ParseScope(" TOOL ")
	require.NoError(t, err)
	assert.Equal(t, ScopeTool, s)

	_, err = ParseScope("files")
	assert.ErrorIs(t, err, ErrInvalidScope)
}
