package paymentautocheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dinedesk/internal/stories/payment"
)

// Worker polls the gateway for online payments that have not reached a final status.
type Worker struct {
	paymentService PaymentService
	interval       time.Duration
	maxChecks      int
	logger         *slog.Logger
	cron           *cron.Cron

	// Track payments being checked so overlapping ticks do not double-check
	processing sync.Map
}

// NewWorker creates a new payment autocheck worker
func NewWorker(paymentService PaymentService, interval time.Duration, maxChecks int, logger *slog.Logger) *Worker {
	return &Worker{
		paymentService: paymentService,
		interval:       interval,
		maxChecks:      maxChecks,
		logger:         logger,
		cron:           cron.New(),
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "payment-autocheck"
}

// Start starts the payment autocheck worker
func (w *Worker) Start() error {
	// Mock checkouts complete synchronously, there is nothing to poll
	if w.paymentService.IsMockPayment() {
		w.logger.Info("Mock payment mode enabled, skipping payment auto-check worker")
		return nil
	}

	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in payment autocheck worker", "panic", r)
			}
		}()
		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Payment autocheck worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule payment autocheck worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Payment autocheck worker started", "interval", w.interval, "max_checks", w.maxChecks)
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping payment autocheck worker")
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	awaiting, err := w.paymentService.ListAwaiting(ctx, w.maxChecks)
	if err != nil {
		return fmt.Errorf("list awaiting payments: %w", err)
	}

	var wg sync.WaitGroup
	for _, p := range awaiting {
		if _, loaded := w.processing.LoadOrStore(p.ID, true); loaded {
			continue
		}

		wg.Add(1)
		go func(p *payment.Payment) {
			defer wg.Done()
			defer w.processing.Delete(p.ID)

			if err := w.check(ctx, p); err != nil {
				w.logger.Error("Failed to check payment",
					"payment_id", p.ID,
					"order_id", p.OrderID,
					"error", err)
			}
		}(p)
	}
	wg.Wait()

	return nil
}

func (w *Worker) check(ctx context.Context, p *payment.Payment) error {
	checked, err := w.paymentService.CheckPaymentStatus(ctx, p.ID)
	if err != nil {
		// The attempt is still counted, the payment will time out eventually
		if p.Checks+1 >= w.maxChecks {
			w.reportTimeout(p)
		}
		return fmt.Errorf("check payment status: %w", err)
	}

	switch {
	case checked.Status == payment.StatusCompleted:
		w.logger.Info("Order payment completed",
			"payment_id", checked.ID,
			"order_id", checked.OrderID)
	case checked.Status == payment.StatusFailed:
		w.logger.Info("Order payment failed",
			"payment_id", checked.ID,
			"order_id", checked.OrderID)
	case checked.Checks >= w.maxChecks:
		w.reportTimeout(checked)
	}
	return nil
}

// reportTimeout logs that polling gave up; the order keeps its unpaid status for staff follow-up.
func (w *Worker) reportTimeout(p *payment.Payment) {
	w.logger.Warn("Payment check timed out, leaving order unpaid",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"restaurant_id", p.RestaurantID,
		"checks", w.maxChecks)
}
