package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"dinedesk/internal/auth"
	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/payment"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
)

type (
	OrderService interface {
		CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
		GetOrder(ctx context.Context, restaurantID, orderID string) (*orders.Order, error)
		GetOrderByCode(ctx context.Context, restaurantID, code string) (*orders.Order, error)
		ListOrders(ctx context.Context, restaurantID string) ([]*orders.Order, error)
		AdvanceStatus(ctx context.Context, restaurantID, orderID string, to orders.Status) (*orders.Order, error)
		CancelOrder(ctx context.Context, restaurantID, orderID string) (*orders.Order, error)
		ConfirmCashPayment(ctx context.Context, restaurantID, orderID string) (*orders.Order, error)
		DeleteOrder(ctx context.Context, restaurantID, orderID string) error
	}

	PaymentService interface {
		StartCheckout(ctx context.Context, order *orders.Order) (*payment.Checkout, error)
		HandleNotification(ctx context.Context, yookassaID string) (*payment.Payment, error)
	}

	WaiterCallService interface {
		CreateCall(ctx context.Context, req waitercalls.CreateRequest) (*waitercalls.Call, error)
		ListActive(ctx context.Context, restaurantID string) ([]*waitercalls.Call, error)
		Acknowledge(ctx context.Context, restaurantID, id string) (*waitercalls.Call, error)
		Complete(ctx context.Context, restaurantID, id string) (*waitercalls.Call, error)
	}

	RestaurantService interface {
		CreateRestaurant(ctx context.Context, req restaurants.CreateRequest) (*restaurants.Restaurant, error)
		GetRestaurant(ctx context.Context, id string) (*restaurants.Restaurant, error)
		ListRestaurants(ctx context.Context, criteria restaurants.ListCriteria) ([]*restaurants.Restaurant, error)
		UpdateRestaurant(ctx context.Context, id string, params restaurants.UpdateParams) (*restaurants.Restaurant, error)
		DeleteRestaurant(ctx context.Context, id string) error
		ConfigureWebhook(ctx context.Context, id string, cfg restaurants.WebhookConfig) (*restaurants.Restaurant, *restaurants.WebhookConfig, error)
		UpsertDish(ctx context.Context, restaurantID string, req restaurants.DishRequest) (*restaurants.Dish, error)
		Menu(ctx context.Context, restaurantID string) (*restaurants.Restaurant, []*restaurants.Dish, error)
		IssueCredential(ctx context.Context, restaurantID string) (*restaurants.IssuedCredential, error)
		Login(ctx context.Context, username, password string) (string, string, error)
	}

	// Feed upgrades a request to a realtime subscription.
	Feed interface {
		ServeWS(w http.ResponseWriter, r *http.Request, restaurantID string, channel realtime.Channel)
	}
)

type Handler struct {
	orders      OrderService
	payments    PaymentService
	calls       WaiterCallService
	restaurants RestaurantService
	feed        Feed
	issuer      *auth.Issuer
	adminToken  string
	logger      *slog.Logger
}

func NewHandler(
	orderService OrderService,
	paymentService PaymentService,
	callService WaiterCallService,
	restaurantService RestaurantService,
	feed Feed,
	issuer *auth.Issuer,
	adminToken string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orders:      orderService,
		payments:    paymentService,
		calls:       callService,
		restaurants: restaurantService,
		feed:        feed,
		issuer:      issuer,
		adminToken:  adminToken,
		logger:      logger,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chiMiddleware.Recoverer)

	r.Route("/public/restaurants/{rid}", func(r chi.Router) {
		r.Get("/menu", h.menu)
		r.Post("/orders", h.createPublicOrder)
		r.Get("/orders/{code}", h.orderByCode)
		r.Post("/waiter-calls", h.createWaiterCall)
	})

	r.Post("/api/auth/login", h.login)

	r.Route("/api/restaurants/{rid}", func(r chi.Router) {
		r.Use(staffOnly(h.issuer))

		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createStaffOrder)
		r.Route("/orders/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Post("/status", h.advanceStatus)
			r.Post("/cancel", h.cancelOrder)
			r.Post("/payment/confirm-cash", h.confirmCash)
			r.Get("/invoice", h.orderInvoice)
		})

		r.Get("/waiter-calls", h.listWaiterCalls)
		r.Post("/waiter-calls/{id}/ack", h.acknowledgeWaiterCall)
		r.Post("/waiter-calls/{id}/complete", h.completeWaiterCall)

		r.Get("/feed/orders", h.feedHandler(realtime.ChannelOrders))
		r.Get("/feed/waiter-calls", h.feedHandler(realtime.ChannelWaiterCalls))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(h.adminToken))

		r.Get("/restaurants", h.listRestaurants)
		r.Post("/restaurants", h.createRestaurant)
		r.Route("/restaurants/{rid}", func(r chi.Router) {
			r.Get("/", h.getRestaurant)
			r.Patch("/", h.updateRestaurant)
			r.Delete("/", h.deleteRestaurant)
			r.Put("/webhook", h.configureWebhook)
			r.Get("/dishes", h.adminMenu)
			r.Post("/dishes", h.upsertDish)
			r.Post("/credentials", h.issueCredential)
			r.Delete("/orders/{id}", h.deleteOrder)
		})
	})

	r.Post("/webhooks/yookassa", h.yookassaWebhook)

	return r
}
