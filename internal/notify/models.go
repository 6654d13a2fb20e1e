package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindNewOrder            Kind = "new_order"
	KindPaymentCompleted    Kind = "payment_completed"
	KindPaymentNotCompleted Kind = "payment_not_completed"
	KindStatusChanged       Kind = "status_changed"
	KindWaiterCall          Kind = "waiter_call"
)

// Event is one operator-visible entry in the desk activity feed.
type Event struct {
	Kind         Kind      `json:"kind"`
	RestaurantID string    `json:"restaurant_id"`
	OrderID      string    `json:"order_id,omitempty"`
	CallID       string    `json:"call_id,omitempty"`
	Code         string    `json:"unique_order_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message"`
	At           time.Time `json:"at"`
}

// Sink delivers events somewhere outside the process. Delivery is best-effort.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Translator renders message templates.
type Translator interface {
	Get(lang, key string, params map[string]interface{}) string
}
