package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dinedesk/internal/dashboard"
	"dinedesk/internal/invoice"
	"dinedesk/internal/metrics"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/waitercalls"
)

type Option func(*Dispatcher)

// WithAlerts adds sinks that fire on events needing the staff's attention:
// a paid new order, a payment just completed, a waiter call.
func WithAlerts(sinks ...Sink) Option {
	return func(d *Dispatcher) {
		d.alerts = append(d.alerts, sinks...)
	}
}

// WithStream adds sinks that receive every event.
func WithStream(sinks ...Sink) Option {
	return func(d *Dispatcher) {
		d.stream = append(d.stream, sinks...)
	}
}

func WithLocale(lang string) Option {
	return func(d *Dispatcher) {
		d.lang = lang
	}
}

func WithCurrencySymbol(symbol string) Option {
	return func(d *Dispatcher) {
		d.currency = symbol
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// Dispatcher turns board and waiter-call events into activity entries and alerts.
// Sink delivery is fire-and-forget: failures are logged and never retried.
type Dispatcher struct {
	activity *Activity
	tr       Translator
	logger   *slog.Logger

	alerts   []Sink
	stream   []Sink
	lang     string
	currency string
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(activity *Activity, tr Translator, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		activity: activity,
		tr:       tr,
		logger:   logger,
		lang:     "en",
		timeout:  10 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) OnInsert(o *orders.Order) {
	if o.PaymentStatus != orders.PaymentCompleted {
		return
	}
	d.dispatch(d.orderEvent(KindNewOrder, o, map[string]interface{}{
		"total": invoice.Money(d.currency, o.TotalAmount),
	}), true)
}

func (d *Dispatcher) OnUpdate(next, prev *orders.Order) {
	if next.PaymentStatus == orders.PaymentCompleted && prev.PaymentStatus != orders.PaymentCompleted {
		d.dispatch(d.orderEvent(KindPaymentCompleted, next, nil), true)
	}
	if next.Status != prev.Status {
		status := d.tr.Get(d.lang, "status."+string(next.Status), nil)
		e := d.orderEvent(KindStatusChanged, next, map[string]interface{}{"status": status})
		e.Status = string(next.Status)
		d.dispatch(e, false)
	}
}

func (d *Dispatcher) OnDelete(o *orders.Order) {
	d.logger.Debug("Order removed from board", "order_id", o.ID)
}

func (d *Dispatcher) OnWaiterCall(call *waitercalls.Call) {
	msg := d.tr.Get(d.lang, "activity."+string(KindWaiterCall), map[string]interface{}{
		"table":   call.TableNumber,
		"message": call.Message,
	})
	d.dispatch(Event{
		Kind:         KindWaiterCall,
		RestaurantID: call.RestaurantID,
		CallID:       call.ID,
		Message:      msg,
	}, true)
}

// PaymentWatchEnded reports a counter order whose online payment never arrived.
// A paid watch is reported by the board update instead.
func (d *Dispatcher) PaymentWatchEnded(o *orders.Order, state dashboard.WatchState) {
	if state == dashboard.WatchPaid {
		return
	}
	e := d.orderEvent(KindPaymentNotCompleted, o, map[string]interface{}{"state": string(state)})
	e.Status = string(state)
	d.dispatch(e, false)
}

func (d *Dispatcher) orderEvent(kind Kind, o *orders.Order, params map[string]interface{}) Event {
	if params == nil {
		params = map[string]interface{}{}
	}
	params["code"] = o.UniqueOrderID
	return Event{
		Kind:         kind,
		RestaurantID: o.RestaurantID,
		OrderID:      o.ID,
		Code:         o.UniqueOrderID,
		Message:      d.tr.Get(d.lang, "activity."+string(kind), params),
	}
}

func (d *Dispatcher) dispatch(e Event, alert bool) {
	e.At = d.now()
	d.activity.Push(e)
	metrics.Notifications.WithLabelValues(string(e.Kind), "activity").Inc()

	d.logger.Info("Desk activity", "kind", e.Kind, "order_id", e.OrderID, "message", e.Message)

	if alert {
		for _, s := range d.alerts {
			d.deliver(s, e)
		}
	}
	for _, s := range d.stream {
		d.deliver(s, e)
	}
}

func (d *Dispatcher) deliver(s Sink, e Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		metrics.Notifications.WithLabelValues(string(e.Kind), s.Name()).Inc()
		if err := s.Deliver(ctx, e); err != nil {
			d.logger.Warn("Notification not delivered",
				"sink", s.Name(),
				"kind", e.Kind,
				slog.Any("error", err))
		}
	}()
}

func (d *Dispatcher) Recent() []Event {
	return d.activity.Recent()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
