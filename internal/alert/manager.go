package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
	"github.com/ppiankov/hookwarden/internal/detect"
)

// DeliveryResult counts webhook outcomes for one alert.
type DeliveryResult struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Delivery tracks the asynchronous webhook deliveries of one alert.
type Delivery struct {
	pending   atomic.Int32
	successes atomic.Int32
	failures  atomic.Int32
	done      chan struct{}
}

func newDelivery(n int) *Delivery {
	d := &Delivery{done: make(chan struct{})}
	d.pending.Store(int32(n))
	if n == 0 {
		close(d.done)
	}
	return d
}

func (d *Delivery) finish(ok bool) {
	if ok {
		d.successes.Add(1)
	} else {
		d.failures.Add(1)
	}
	if d.pending.Add(-1) == 0 {
		close(d.done)
	}
}

// Done is closed once every webhook attempt has finished.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Result returns the counts so far.
func (d *Delivery) Result() DeliveryResult {
	return DeliveryResult{
		Successes: int(d.successes.Load()),
		Failures:  int(d.failures.Load()),
	}
}

// SendResult is returned by Manager.Send without waiting for the network.
type SendResult struct {
	Queued      bool `json:"queued"`
	RateLimited bool `json:"rate_limited"`
	Delivery    *Delivery
}

// Wait blocks until delivery finishes or ctx is done and returns the counts
// observed so far. Rejected alerts return a zero result immediately.
func (r SendResult) Wait(ctx context.Context) DeliveryResult {
	if r.Delivery == nil {
		return DeliveryResult{}
	}
	select {
	case <-r.Delivery.done:
	case <-ctx.Done():
	}
	return r.Delivery.Result()
}

// Stats counts manager activity since creation.
type Stats struct {
	Sent        int `json:"sent"`
	RateLimited int `json:"rate_limited"`
	Suppressed  int `json:"suppressed"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
	QueueFull   int `json:"queue_full"`
}

type job struct {
	alert    Alert
	hook     *webhook
	delivery *Delivery
}

// ErrClosed is returned by webhook mutators after Close.
var ErrClosed = errors.New("alert manager closed")

// Manager rate-limits alerts, keeps a bounded history and delivers each
// accepted alert to matching webhooks on a worker pool.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
	sender *sender

	mu       sync.Mutex
	enabled  bool
	closed   bool
	webhooks []*webhook
	window   []time.Time
	history  []Alert
	stats    Stats

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager validates webhooks and starts the delivery workers. clk and
// logger may be nil.
func NewManager(cfg Config, clk clock.Clock, logger *slog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	hooks := make([]*webhook, 0, len(cfg.Webhooks))
	for _, wc := range cfg.Webhooks {
		if err := wc.Validate(); err != nil {
			return nil, err
		}
		hooks = append(hooks, newWebhook(wc))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		clock:  clock.OrReal(clk),
		logger: logger,
		sender: &sender{
			client:      &http.Client{Timeout: cfg.RequestTimeout},
			retries:     cfg.RetryCount,
			initialWait: cfg.RetryInitialInterval,
		},
		enabled:  cfg.Enabled,
		webhooks: hooks,
		jobs:     make(chan job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m, nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for j := range m.jobs {
		attempts, err := m.sender.send(m.ctx, j.hook, j.alert)
		m.mu.Lock()
		if err != nil {
			m.stats.Failed++
		} else {
			m.stats.Delivered++
		}
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn("alert delivery failed", "alert", label(j.alert), "url", j.hook.cfg.URL, "attempts", attempts, "error", err)
		}
		j.delivery.finish(err == nil)
	}
}

// Send accepts a for delivery unless the manager is disabled or the sliding
// window is full. A zero Timestamp is set from the clock. Send never waits on
// the network; use SendResult.Wait for delivery counts.
func (m *Manager) Send(a Alert) SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.enabled {
		m.stats.Suppressed++
		return SendResult{}
	}

	now := m.clock.Now()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}

	cutoff := now.Add(-m.cfg.RateLimitWindow)
	keep := 0
	for keep < len(m.window) && !m.window[keep].After(cutoff) {
		keep++
	}
	m.window = m.window[keep:]
	if len(m.window) >= m.cfg.RateLimitMax {
		m.stats.RateLimited++
		return SendResult{RateLimited: true}
	}
	m.window = append(m.window, now)

	m.history = append(m.history, a)
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	m.stats.Sent++

	var targets []*webhook
	for _, w := range m.webhooks {
		if w.accepts(a) {
			targets = append(targets, w)
		}
	}
	d := newDelivery(len(targets))
	for _, w := range targets {
		select {
		case m.jobs <- job{alert: a, hook: w, delivery: d}:
		default:
			m.stats.QueueFull++
			m.logger.Warn("alert queue full, dropping delivery", "alert", label(a), "url", w.cfg.URL)
			d.finish(false)
		}
	}
	return SendResult{Queued: true, Delivery: d}
}

// AlertHighThreatInput reports an inbound message scored at threatLevel.
func (m *Manager) AlertHighThreatInput(sessionID string, threatLevel int) SendResult {
	sev := detect.SeverityHigh
	if threatLevel >= detect.MaxThreatLevel {
		sev = detect.SeverityCritical
	}
	return m.Send(Alert{
		Type:      TypeHighThreatInput,
		Severity:  sev,
		Message:   fmt.Sprintf("High threat input detected (level %d/%d)", threatLevel, detect.MaxThreatLevel),
		SessionID: sessionID,
	})
}

// AlertActionBlocked reports a blocked message or tool call.
func (m *Manager) AlertActionBlocked(sessionID, action, reason string) SendResult {
	return m.Send(Alert{
		Type:      TypeActionBlocked,
		Severity:  detect.SeverityMedium,
		Message:   fmt.Sprintf("Blocked %s: %s", action, reason),
		SessionID: sessionID,
	})
}

// AlertPromptInjection reports a prompt injection attempt.
func (m *Manager) AlertPromptInjection(sessionID, description string) SendResult {
	return m.Send(Alert{
		Type:      TypePromptInjection,
		Severity:  detect.SeverityCritical,
		Message:   fmt.Sprintf("Prompt injection attempt: %s", description),
		SessionID: sessionID,
	})
}

// AlertSessionAnomaly reports an anomaly found at session end.
func (m *Manager) AlertSessionAnomaly(sessionID, anomalyType string, confidence float64) SendResult {
	sev := detect.SeverityMedium
	if confidence >= 0.8 {
		sev = detect.SeverityHigh
	}
	return m.Send(Alert{
		Type:      TypeSessionAnomaly,
		Severity:  sev,
		Message:   fmt.Sprintf("Session anomaly %s (confidence %.2f)", anomalyType, confidence),
		SessionID: sessionID,
	})
}

// AlertError reports an internal failure.
func (m *Manager) AlertError(sessionID, operation string, err error) SendResult {
	return m.Send(Alert{
		Type:      TypeError,
		Severity:  detect.SeverityHigh,
		Message:   fmt.Sprintf("%s failed: %v", operation, err),
		SessionID: sessionID,
	})
}

// Enable resumes dispatch.
func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

// Disable suppresses dispatch; Send reports Queued=false.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// Enabled reports whether dispatch is on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// AddWebhook appends a destination. A destination with the same URL is
// replaced.
func (m *Manager) AddWebhook(cfg WebhookConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.webhooks = slices.DeleteFunc(m.webhooks, func(w *webhook) bool { return w.cfg.URL == cfg.URL })
	m.webhooks = append(m.webhooks, newWebhook(cfg))
	return nil
}

// RemoveWebhook drops the destination with url. Returns false if none matched.
func (m *Manager) RemoveWebhook(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.webhooks)
	m.webhooks = slices.DeleteFunc(m.webhooks, func(w *webhook) bool { return w.cfg.URL == url })
	return len(m.webhooks) != before
}

// SetWebhooks replaces every destination. Used by config reload.
func (m *Manager) SetWebhooks(cfgs []WebhookConfig) error {
	hooks := make([]*webhook, 0, len(cfgs))
	for _, c := range cfgs {
		if err := c.Validate(); err != nil {
			return err
		}
		hooks = append(hooks, newWebhook(c))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.webhooks = hooks
	return nil
}

// Webhooks returns the configured destinations.
func (m *Manager) Webhooks() []WebhookConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WebhookConfig, len(m.webhooks))
	for i, w := range m.webhooks {
		out[i] = w.cfg
	}
	return out
}

// History returns up to n accepted alerts, newest first. n <= 0 returns all.
func (m *Manager) History(n int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]Alert, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Stats returns activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close stops accepting alerts, lets queued deliveries finish and stops the
// workers. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()

	m.wg.Wait()
	m.cancel()
	return nil
}
