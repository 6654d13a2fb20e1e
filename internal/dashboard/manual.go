package dashboard

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"dinedesk/internal/backend"
	"dinedesk/internal/stories/orders"
)

type WatchState string

const (
	WatchRunning   WatchState = "watching"
	WatchPaid      WatchState = "paid"
	WatchFailed    WatchState = "failed"
	WatchTimedOut  WatchState = "timed_out"
	WatchCancelled WatchState = "cancelled"
)

// OrderCreator places desk orders on the server.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest, idempotencyKey string) (*backend.CreateOrderResult, error)
}

// WatchReporter is told how a payment watch ended.
type WatchReporter interface {
	PaymentWatchEnded(order *orders.Order, state WatchState)
}

type Watch struct {
	OrderID     string     `json:"order_id"`
	Code        string     `json:"unique_order_id"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	State       WatchState `json:"state"`

	cancel context.CancelFunc
}

// ManualOrders creates orders taken at the counter and watches their online payment.
type ManualOrders struct {
	creator  OrderCreator
	watcher  *PaymentWatcher
	reporter WatchReporter
	logger   *slog.Logger

	mu      sync.Mutex
	watches map[string]*Watch
	wg      sync.WaitGroup
}

func NewManualOrders(creator OrderCreator, watcher *PaymentWatcher, reporter WatchReporter, logger *slog.Logger) *ManualOrders {
	return &ManualOrders{
		creator:  creator,
		watcher:  watcher,
		reporter: reporter,
		logger:   logger,
		watches:  make(map[string]*Watch),
	}
}

// Create places the order. A blank key gets a fresh one; resending the same key
// returns the same order without creating a duplicate.
func (m *ManualOrders) Create(ctx context.Context, req backend.CreateOrderRequest, idempotencyKey string) (*backend.CreateOrderResult, string, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	res, err := m.creator.CreateOrder(ctx, req, key)
	if err != nil {
		return nil, key, errors.Wrap(err, "create order")
	}

	o := res.Order
	if o.PaymentMethod == orders.PaymentMethodOnline && o.PaymentStatus != orders.PaymentCompleted && res.Checkout != nil {
		m.watch(o, res.Checkout.CheckoutURL)
	}
	return res, key, nil
}

func (m *ManualOrders) watch(o *orders.Order, checkoutURL string) {
	m.mu.Lock()
	if w, ok := m.watches[o.ID]; ok && w.State == WatchRunning {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watch{OrderID: o.ID, Code: o.UniqueOrderID, CheckoutURL: checkoutURL, State: WatchRunning, cancel: cancel}
	m.watches[o.ID] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		paid, err := m.watcher.Wait(ctx, o.ID)
		state := WatchPaid
		switch {
		case errors.Is(err, ErrPaymentCancelled):
			state = WatchCancelled
		case errors.Is(err, ErrPaymentFailed):
			state = WatchFailed
		case err != nil:
			state = WatchTimedOut
		}

		m.mu.Lock()
		w.State = state
		m.mu.Unlock()

		final := o
		if paid != nil {
			final = paid
		}
		if m.reporter != nil {
			m.reporter.PaymentWatchEnded(final.Clone(), state)
		}
	}()
}

// Cancel stops watching, typically because the checkout window was closed.
func (m *ManualOrders) Cancel(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[orderID]
	if !ok || w.State != WatchRunning {
		return false
	}
	w.cancel()
	return true
}

func (m *ManualOrders) Watch(orderID string) (Watch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[orderID]
	if !ok {
		return Watch{}, false
	}
	return *w, true
}

// Close cancels running watches and waits for them to finish.
func (m *ManualOrders) Close() {
	m.mu.Lock()
	for _, w := range m.watches {
		if w.State == WatchRunning {
			w.cancel()
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}
