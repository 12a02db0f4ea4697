package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// webhook is a configured destination with its pacing limiter.
type webhook struct {
	cfg     WebhookConfig
	limiter *rate.Limiter
}

func newWebhook(cfg WebhookConfig) *webhook {
	if cfg.Format == "" {
		cfg.Format = FormatGeneric
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = detect.SeverityLow
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &webhook{cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

func (w *webhook) accepts(a Alert) bool {
	return a.Severity.AtLeast(w.cfg.MinSeverity)
}

// sender posts payloads with pacing and exponential backoff.
type sender struct {
	client      *http.Client
	retries     int
	initialWait time.Duration
}

// send posts a to w. Transport errors and non-2xx responses are retried up to
// s.retries times after the first attempt.
func (s *sender) send(ctx context.Context, w *webhook, a Alert) (attempts int, err error) {
	body, err := FormatPayload(w.cfg.Format, a)
	if err != nil {
		return 0, fmt.Errorf("format payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialWait
	b.MaxInterval = 30 * s.initialWait

	op := func() (struct{}, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attempts++
		return struct{}{}, s.post(ctx, w.cfg, body)
	}
	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.retries+1)),
	)
	if err != nil {
		return attempts, fmt.Errorf("webhook %s failed after %d attempts: %w", w.cfg.URL, attempts, err)
	}
	return attempts, nil
}

func (s *sender) post(ctx context.Context, cfg WebhookConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
