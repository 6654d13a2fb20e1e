package waitercallexpiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Worker completes waiter calls left open longer than the configured ttl
type Worker struct {
	calls  CallService
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

// NewWorker creates a new waiter call expiry worker
func NewWorker(calls CallService, ttl time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		calls:  calls,
		ttl:    ttl,
		logger: logger,
		cron:   cron.New(),
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "waiter-call-expiry"
}

// Start starts the expiry worker
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc("@every 1m", func() {
		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Waiter call expiry worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule waiter call expiry worker: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping waiter call expiry worker")
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	expired, err := w.calls.ExpireStale(ctx, w.ttl)
	if err != nil {
		return fmt.Errorf("expire stale waiter calls: %w", err)
	}
	if expired > 0 {
		w.logger.Info("Stale waiter calls completed", "count", expired, "ttl", w.ttl)
	}
	return nil
}
