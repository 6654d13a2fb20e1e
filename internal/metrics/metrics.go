package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dinedesk"

var (
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders created, by payment method and whether the idempotency key was replayed.",
	}, []string{"payment_method", "replayed"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_transitions_total",
		Help:      "Order status transitions written.",
	}, []string{"from", "to"})

	PaymentStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_status_changes_total",
		Help:      "Order payment status changes written.",
	}, []string{"to", "source"})

	RealtimeSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Open realtime feed subscriptions.",
	}, []string{"channel"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Outbound webhook deliveries, by result.",
	}, []string{"result"})

	BoardOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "desk",
		Name:      "board_orders",
		Help:      "Orders held by the desk board.",
	})

	BoardResyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "desk",
		Name:      "board_resyncs_total",
		Help:      "Full re-fetches performed by the desk board, by trigger and result.",
	}, []string{"trigger", "result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "desk",
		Name:      "notifications_total",
		Help:      "Notifications dispatched, by kind and sink.",
	}, []string{"kind", "sink"})
)
