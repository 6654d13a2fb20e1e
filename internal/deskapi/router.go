package deskapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"dinedesk/internal/backend"
	"dinedesk/internal/dashboard"
	"dinedesk/internal/notify"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/waitercalls"
)

type (
	Board interface {
		Snapshot() dashboard.Snapshot
		Ack()
		Retry()
	}

	Actions interface {
		Available(orderID string) (orders.Action, bool)
		InFlight(orderID string) bool
		Advance(ctx context.Context, orderID string) (*orders.Order, error)
		ConfirmCash(ctx context.Context, orderID string) (*orders.Order, error)
	}

	ManualOrders interface {
		Create(ctx context.Context, req backend.CreateOrderRequest, idempotencyKey string) (*backend.CreateOrderResult, string, error)
		Watch(orderID string) (dashboard.Watch, bool)
		Cancel(orderID string) bool
	}

	Calls interface {
		Open() []*waitercalls.Call
	}

	// Backend covers the calls that go straight to the server.
	Backend interface {
		Invoice(ctx context.Context, orderID string) (string, error)
		AcknowledgeWaiterCall(ctx context.Context, id string) (*waitercalls.Call, error)
		CompleteWaiterCall(ctx context.Context, id string) (*waitercalls.Call, error)
	}

	Activity interface {
		Recent() []notify.Event
	}
)

// Handler serves the desk screen on the local machine.
type Handler struct {
	board    Board
	actions  Actions
	manual   ManualOrders
	calls    Calls
	backend  Backend
	activity Activity
	logger   *slog.Logger
}

func NewHandler(board Board, actions Actions, manual ManualOrders, calls Calls, backend Backend, activity Activity, logger *slog.Logger) *Handler {
	return &Handler{
		board:    board,
		actions:  actions,
		manual:   manual,
		calls:    calls,
		backend:  backend,
		activity: activity,
		logger:   logger,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Route("/board", func(r chi.Router) {
		r.Get("/", h.getBoard)
		r.Post("/ack", h.ackBoard)
		r.Post("/retry", h.retryBoard)
	})
	r.Get("/activity", h.getActivity)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/advance", h.advance)
			r.Post("/confirm-cash", h.confirmCash)
			r.Get("/invoice", h.invoice)
			r.Get("/payment-watch", h.getWatch)
			r.Delete("/payment-watch", h.cancelWatch)
		})
	})

	r.Route("/waiter-calls", func(r chi.Router) {
		r.Get("/", h.listCalls)
		r.Post("/{id}/ack", h.ackCall)
		r.Post("/{id}/complete", h.completeCall)
	})

	return r
}
