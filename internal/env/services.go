package environment

import (
	"context"
	"log/slog"

	"dinedesk/internal/api"
	"dinedesk/internal/auth"
	"dinedesk/internal/config"
	"dinedesk/internal/events"
	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/infra/webhook"
	"dinedesk/internal/storage"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/payment"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
	"dinedesk/internal/workers"
	"dinedesk/internal/workers/paymentautocheck"
	"dinedesk/internal/workers/waitercallexpiry"
)

type Services struct {
	Hub         *realtime.Hub
	Forwarder   *webhook.Forwarder
	Orders      *orders.Service
	Payments    *payment.Service
	Restaurants *restaurants.Service
	WaiterCalls *waitercalls.Service
	API         *api.Handler
	Workers     *workers.Manager
}

func newServices(_ context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) *Services {
	var s Services

	storageImpl := storage.New(clients.SQLiteDB.DB)

	s.Hub = realtime.NewHub(logger.With("component", "realtime"))
	s.Forwarder = webhook.NewForwarder(cfg.Webhooks.Timeout, cfg.Webhooks.RPS, logger.With("component", "webhook"))
	publisher := events.NewPublisher(s.Hub, s.Forwarder, storageImpl, logger)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	s.Orders = orders.NewService(storageImpl, storageImpl, publisher, logger.With("story", "orders"))
	s.Payments = payment.NewService(storageImpl, clients.YooKassa, s.Orders, cfg.YooKassa.MockPayment, logger.With("story", "payment"))
	s.Restaurants = restaurants.NewService(storageImpl, issuer, logger.With("story", "restaurants"))
	s.WaiterCalls = waitercalls.NewService(storageImpl, publisher, logger.With("story", "waitercalls"))

	s.API = api.NewHandler(
		s.Orders,
		s.Payments,
		s.WaiterCalls,
		s.Restaurants,
		s.Hub,
		issuer,
		cfg.Admin.Token,
		logger.With("component", "api"),
	)

	s.Workers = workers.NewManager(
		logger,
		paymentautocheck.NewWorker(s.Payments, cfg.Payment.CheckInterval, cfg.Payment.MaxChecks, logger.With("worker", "payment-autocheck")),
		waitercallexpiry.NewWorker(s.WaiterCalls, cfg.WaiterCalls.TTL, logger.With("worker", "waiter-call-expiry")),
	)

	return &s
}
