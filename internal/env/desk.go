package environment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"dinedesk/internal/backend"
	"dinedesk/internal/config"
	"dinedesk/internal/dashboard"
	"dinedesk/internal/deskapi"
	"dinedesk/internal/infra/rabbitmq"
	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/infra/telegram"
	"dinedesk/internal/localization"
	"dinedesk/internal/notify"
)

// DeskEnv is the wired desk agent: board, waiter calls, notifications and the local screen API.
type DeskEnv struct {
	Config *config.DeskConfig
	Logger *slog.Logger

	Backend    *backend.Client
	Board      *dashboard.Board
	Calls      *dashboard.Calls
	Manual     *dashboard.ManualOrders
	Dispatcher *notify.Dispatcher

	Feeds struct {
		Orders      *realtime.Client
		WaiterCalls *realtime.Client
	}

	Servers struct {
		Desk          *http.Server
		Observability *http.Server
	}

	Closers []closer
}

// SetupDesk wires the desk agent that runs next to the restaurant's screen.
func SetupDesk(ctx context.Context) (*DeskEnv, error) {
	_ = godotenv.Load()

	var cfg config.DeskConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("env processing: %w", err)
	}

	logger := initLogger(cfg.Env, cfg.Logger.Level)

	e := DeskEnv{Config: &cfg, Logger: logger}

	e.Backend = backend.NewClient(
		cfg.Backend.URL,
		backend.Credentials{
			RestaurantID: cfg.Backend.RestaurantID,
			Username:     cfg.Backend.Username,
			Password:     cfg.Backend.Password,
		},
		&http.Client{Timeout: cfg.Backend.Timeout},
		logger.With("component", "backend"),
	)

	translations, err := localization.NewService()
	if err != nil {
		return nil, fmt.Errorf("localization: %w", err)
	}

	opts := []notify.Option{
		notify.WithLocale(cfg.Desk.Locale),
		notify.WithCurrencySymbol(cfg.Desk.CurrencySymbol),
	}
	if cfg.Desk.Chime {
		opts = append(opts, notify.WithAlerts(notify.NewChime(os.Stdout)))
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, logger.With("component", "telegram"))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		opts = append(opts, notify.WithAlerts(notify.NewPlatformSink(bot)))
	}

	if cfg.RabbitMQ.Host != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Exchange, logger.With("component", "rabbitmq"))
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		opts = append(opts, notify.WithStream(notify.NewStreamSink(pub)))
		e.Closers = append(e.Closers, func() {
			if err := pub.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ connection", slog.Any("error", err))
			}
		})
	}

	activity := notify.NewActivity(cfg.Desk.ActivitySize)
	e.Dispatcher = notify.NewDispatcher(activity, translations, logger.With("component", "notify"), opts...)

	rid := cfg.Backend.RestaurantID
	e.Board = dashboard.NewBoard(rid, e.Backend, e.Dispatcher, cfg.Backend.PollInterval, logger.With("component", "board"))
	e.Calls = dashboard.NewCalls(rid, e.Backend, e.Dispatcher, logger.With("component", "waiter-calls"))

	actions := dashboard.NewActions(e.Board, e.Backend, logger.With("component", "actions"))
	watcher := dashboard.NewPaymentWatcher(e.Backend, dashboard.DefaultPaymentInterval, dashboard.DefaultPaymentAttempts, logger.With("component", "payment-watch"))
	e.Manual = dashboard.NewManualOrders(e.Backend, watcher, e.Dispatcher, logger.With("component", "manual-orders"))

	e.Feeds.Orders = realtime.NewClient(e.Backend.FeedURL(realtime.ChannelOrders), e.Backend.Token, cfg.Backend.RetryInterval, logger.With("feed", "orders"))
	e.Feeds.WaiterCalls = realtime.NewClient(e.Backend.FeedURL(realtime.ChannelWaiterCalls), e.Backend.Token, cfg.Backend.RetryInterval, logger.With("feed", "waiter_calls"))

	handler := deskapi.NewHandler(e.Board, actions, e.Manual, e.Calls, e.Backend, e.Dispatcher, logger.With("component", "deskapi"))
	e.Servers.Desk = &http.Server{
		Addr:              cfg.Desk.ADDR(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.Desk.ReadTimeout,
	}
	e.Servers.Observability = initObservability(logger.WithGroup("http"), cfg.Observability, func(context.Context) error {
		if e.Board.State() == dashboard.StateFailed {
			return fmt.Errorf("order board failed to load")
		}
		return nil
	})

	// Closers run in order: watches stop, then pending deliveries drain
	e.Closers = append([]closer{e.Manual.Close, e.Dispatcher.Wait}, e.Closers...)

	return &e, nil
}
