package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"dinedesk/internal/stories/orders"
)

var (
	ErrPaymentTimeout   = errors.New("payment was not completed in time")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrPaymentCancelled = errors.New("payment watch cancelled")
)

const (
	DefaultPaymentInterval = 5 * time.Second
	DefaultPaymentAttempts = 60
)

// OrderReader fetches the current state of one order.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

// PaymentWatcher waits for a desk-created online order to be paid. The order is
// never changed by a timeout or a cancellation; staff follow up manually.
type PaymentWatcher struct {
	reader   OrderReader
	interval time.Duration
	attempts int
	logger   *slog.Logger
}

func NewPaymentWatcher(reader OrderReader, interval time.Duration, attempts int, logger *slog.Logger) *PaymentWatcher {
	return &PaymentWatcher{reader: reader, interval: interval, attempts: attempts, logger: logger}
}

// Wait polls the order's payment status every interval, at most attempts times.
// It returns the paid order, ErrPaymentFailed, ErrPaymentTimeout, or
// ErrPaymentCancelled when ctx ends first (for example the checkout was closed).
func (w *PaymentWatcher) Wait(ctx context.Context, orderID string) (*orders.Order, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= w.attempts; attempt++ {
		select {
		case <-ctx.Done():
			w.logger.Info("Payment watch cancelled", "order_id", orderID, "attempt", attempt)
			return nil, errors.Wrapf(ErrPaymentCancelled, "order %s", orderID)
		case <-ticker.C:
		}

		o, err := w.reader.GetOrder(ctx, orderID)
		if err != nil {
			// A failed check uses up the attempt
			w.logger.Warn("Payment status check failed", "order_id", orderID, "attempt", attempt, "error", err)
			continue
		}

		switch o.PaymentStatus {
		case orders.PaymentCompleted:
			w.logger.Info("Payment completed", "order_id", orderID, "attempt", attempt)
			return o, nil
		case orders.PaymentFailed:
			return o, errors.Wrapf(ErrPaymentFailed, "order %s", orderID)
		}
	}

	w.logger.Warn("Payment watch timed out, order left unpaid", "order_id", orderID, "attempts", w.attempts)
	return nil, errors.Wrapf(ErrPaymentTimeout, "order %s after %d checks", orderID, w.attempts)
}
