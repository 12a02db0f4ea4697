package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/detect"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(hooks ...WebhookConfig) Config {
	cfg := DefaultConfig()
	cfg.Webhooks = hooks
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func newTestManager(t *testing.T, cfg Config, clk clock.Clock) *Manager {
	t.Helper()
	m, err := NewManager(cfg, clk, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGenericPayloadDelivered(t *testing.T) {
	var (
		mu      sync.Mutex
		body    []byte
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestManager(t, testConfig(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "secret"},
	}), clock.NewFake(epoch))

	res := m.AlertActionBlocked("s1", "tool call", "rm -rf /")
	require.True(t, res.Queued)
	assert.Equal(t, DeliveryResult{Successes: 1}, res.Wait(waitCtx(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "secret", headers.Get("X-Token"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "action_blocked", payload["type"])
	assert.Equal(t, "medium", payload["severity"])
	assert.Equal(t, "Blocked tool call: rm -rf /", payload["message"])
	assert.Equal(t, "2026-03-01T12:00:00.000Z", payload["timestamp"])
	assert.Equal(t, "s1", payload["session_id"])
}

func TestRateLimitDropsExcess(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 2
	clk := clock.NewFake(epoch)
	m := newTestManager(t, cfg, clk)

	first := m.AlertActionBlocked("s1", "a", "r")
	second := m.AlertActionBlocked("s1", "b", "r")
	third := m.AlertActionBlocked("s1", "c", "r")

	assert.True(t, first.Queued)
	assert.True(t, second.Queued)
	assert.False(t, third.Queued)
	assert.True(t, third.RateLimited)
	assert.Len(t, m.History(0), 2)
	assert.Equal(t, 1, m.Stats().RateLimited)

	clk.Advance(cfg.RateLimitWindow + time.Second)
	assert.True(t, m.AlertActionBlocked("s1", "d", "r").Queued)
}

func TestRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := newTestManager(t, testConfig(WebhookConfig{URL: srv.URL}), nil)
	res := m.AlertError("s1", "detector", assert.AnError)

	assert.Equal(t, DeliveryResult{Successes: 1}, res.Wait(waitCtx(t)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhaustedCountsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(WebhookConfig{URL: srv.URL})
	cfg.RetryCount = 2
	m := newTestManager(t, cfg, nil)

	res := m.AlertPromptInjection("s1", "ignore previous instructions")
	require.True(t, res.Queued)
	assert.Equal(t, DeliveryResult{Failures: 1}, res.Wait(waitCtx(t)))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, m.Stats().Failed)
}

func TestTransportErrorCountsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig(WebhookConfig{URL: url})
	cfg.RetryCount = 1
	m := newTestManager(t, cfg, nil)

	res := m.AlertHighThreatInput("s1", 5)
	assert.True(t, res.Queued)
	assert.Equal(t, DeliveryResult{Failures: 1}, res.Wait(waitCtx(t)))
}

func TestMinSeverityFilters(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	m := newTestManager(t, testConfig(WebhookConfig{URL: srv.URL, MinSeverity: detect.SeverityHigh}), nil)

	low := m.AlertActionBlocked("s1", "tool", "r")
	assert.True(t, low.Queued)
	assert.Equal(t, DeliveryResult{}, low.Wait(waitCtx(t)))

	high := m.AlertPromptInjection("s1", "x")
	assert.Equal(t, DeliveryResult{Successes: 1}, high.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMultipleWebhooks(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	m := newTestManager(t, testConfig(
		WebhookConfig{URL: srv1.URL, Format: FormatSlack},
		WebhookConfig{URL: srv2.URL, Format: FormatPagerDuty},
	), nil)

	res := m.AlertSessionAnomaly("s1", "high_threat_rate", 1)
	assert.Equal(t, DeliveryResult{Successes: 2}, res.Wait(waitCtx(t)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDisableSuppresses(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)

	m.Disable()
	assert.False(t, m.Enabled())
	res := m.AlertActionBlocked("s1", "a", "r")
	assert.False(t, res.Queued)
	assert.False(t, res.RateLimited)
	assert.Empty(t, m.History(0))

	m.Enable()
	assert.True(t, m.AlertActionBlocked("s1", "a", "r").Queued)
	assert.Equal(t, 1, m.Stats().Suppressed)
}

func TestWebhookManagement(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)

	require.NoError(t, m.AddWebhook(WebhookConfig{URL: "https://hooks.example.test/a"}))
	require.NoError(t, m.AddWebhook(WebhookConfig{URL: "https://hooks.example.test/a", Format: FormatSlack}))
	require.NoError(t, m.AddWebhook(WebhookConfig{URL: "https://hooks.example.test/b"}))
	hooks := m.Webhooks()
	require.Len(t, hooks, 2)
	assert.Equal(t, FormatSlack, hooks[0].Format)

	assert.Error(t, m.AddWebhook(WebhookConfig{URL: "not a url"}))
	assert.Error(t, m.AddWebhook(WebhookConfig{URL: "https://x.test", Format: "teams"}))

	assert.True(t, m.RemoveWebhook("https://hooks.example.test/a"))
	assert.False(t, m.RemoveWebhook("https://hooks.example.test/a"))
	assert.Len(t, m.Webhooks(), 1)

	require.NoError(t, m.SetWebhooks(nil))
	assert.Empty(t, m.Webhooks())
}

func TestHistoryBoundedNewestFirst(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 2
	cfg.RateLimitMax = 100
	m := newTestManager(t, cfg, clock.NewFake(epoch))

	m.AlertActionBlocked("s1", "a", "r")
	m.AlertActionBlocked("s2", "b", "r")
	m.AlertActionBlocked("s3", "c", "r")

	h := m.History(0)
	require.Len(t, h, 2)
	assert.Equal(t, "s3", h[0].SessionID)
	assert.Equal(t, "s2", h[1].SessionID)
	assert.Len(t, m.History(1), 1)
}

func TestSendAfterCloseIsSuppressed(t *testing.T) {
	m, err := NewManager(testConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.False(t, m.AlertActionBlocked("s1", "a", "r").Queued)
	assert.ErrorIs(t, m.AddWebhook(WebhookConfig{URL: "https://x.test"}), ErrClosed)
}

func TestNewManagerRejectsBadWebhook(t *testing.T) {
	_, err := NewManager(testConfig(WebhookConfig{URL: "ftp://x"}), nil, nil)
	assert.Error(t, err)
}

func TestConvenienceSeverities(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 100
	m := newTestManager(t, cfg, nil)

	m.AlertHighThreatInput("s", 4)
	m.AlertHighThreatInput("s", 5)
	m.AlertSessionAnomaly("s", "escalation_pattern", 0.4)

	h := m.History(0)
	require.Len(t, h, 3)
	assert.Equal(t, detect.SeverityMedium, h[0].Severity)
	assert.Equal(t, detect.SeverityCritical, h[1].Severity)
	assert.Equal(t, detect.SeverityHigh, h[2].Severity)
	assert.Equal(t, TypeHighThreatInput, h[2].Type)
}
