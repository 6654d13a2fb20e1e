package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dinedesk/internal/metrics"
)

const (
	SignatureHeader = "X-Signature"
	EventHeader     = "X-Event"
)

// Target is a restaurant's configured endpoint.
type Target struct {
	URL    string
	Secret string
}

// Forwarder POSTs order events to restaurant webhooks without waiting for the result.
type Forwarder struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewForwarder(timeout time.Duration, rps float64, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Forward schedules one delivery. Failures are logged and counted, never retried.
func (f *Forwarder) Forward(ctx context.Context, target Target, event string, body []byte) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		// detached from the request; the caller may already be gone
		ctx := context.WithoutCancel(ctx)
		if err := f.deliver(ctx, target, event, body); err != nil {
			metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
			f.logger.Warn("Webhook delivery failed", "url", target.URL, "event", event, "error", err)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	}()
}

// Wait blocks until scheduled deliveries finish.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) deliver(ctx context.Context, target Target, event string, body []byte) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	if target.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(target.Secret, body))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
