package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	environment "dinedesk/internal/env"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	env, err := environment.SetupDesk(ctx)
	if err != nil {
		log.Fatalf("Failed to setup desk environment: %v", err)
	}

	logger := env.Logger
	logger.Info("Starting dinedesk desk agent", slog.String("restaurant_id", env.Config.Backend.RestaurantID))

	if env.Servers.Observability != nil {
		go func() {
			logger.Info("Starting observability server", slog.String("addr", env.Servers.Observability.Addr))
			if err := env.Servers.Observability.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Observability server error", slog.Any("error", err))
			}
		}()
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("Desk loop stopped", slog.String("loop", name), slog.Any("error", err))
			}
		}()
	}

	run("board", env.Board.Run)
	run("waiter-calls", env.Calls.Run)
	run("orders-feed", func(ctx context.Context) error { return env.Feeds.Orders.Run(ctx, env.Board) })
	run("waiter-calls-feed", func(ctx context.Context) error { return env.Feeds.WaiterCalls.Run(ctx, env.Calls) })

	go func() {
		logger.Info("Starting desk server", slog.String("addr", env.Servers.Desk.Addr))
		if err := env.Servers.Desk.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Desk server error", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Desk agent started. Press Ctrl+C to stop.")
	<-quit

	logger.Info("Shutting down desk agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.Config.ShutdownDuration)
	defer cancel()

	if err := env.Servers.Desk.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error("Desk server shutdown error", slog.Any("error", err))
	}

	stop()
	wg.Wait()

	if env.Servers.Observability != nil {
		if err := env.Servers.Observability.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Error("Observability server shutdown error", slog.Any("error", err))
		}
	}

	for _, closer := range env.Closers {
		closer()
	}

	logger.Info("Desk agent stopped")
}
