package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/infra/webhook"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
)

type (
	Hub interface {
		Publish(restaurantID string, channel realtime.Channel, action realtime.Action, record any) error
	}

	Forwarder interface {
		Forward(ctx context.Context, target webhook.Target, event string, body []byte)
	}

	RestaurantGetter interface {
		GetRestaurant(ctx context.Context, id string) (*restaurants.Restaurant, error)
	}
)

// Publisher pushes row changes to the realtime hub and, for orders, to the
// restaurant's webhook when one is configured.
type Publisher struct {
	hub         Hub
	forwarder   Forwarder
	restaurants RestaurantGetter
	logger      *slog.Logger
}

func NewPublisher(hub Hub, forwarder Forwarder, restaurants RestaurantGetter, logger *slog.Logger) *Publisher {
	return &Publisher{hub: hub, forwarder: forwarder, restaurants: restaurants, logger: logger}
}

type orderEvent struct {
	Action orders.ChangeAction `json:"action"`
	Order  *orders.Order       `json:"order"`
}

func (p *Publisher) PublishOrder(ctx context.Context, action orders.ChangeAction, order *orders.Order) {
	if err := p.hub.Publish(order.RestaurantID, realtime.ChannelOrders, realtime.Action(action), order); err != nil {
		p.logger.Error("Failed to publish order change", "order_id", order.ID, "action", action, "error", err)
	}

	restaurant, err := p.restaurants.GetRestaurant(ctx, order.RestaurantID)
	if err != nil {
		p.logger.Error("Failed to load restaurant for webhook", "restaurant_id", order.RestaurantID, "error", err)
		return
	}
	if restaurant == nil || !restaurant.HasWebhook() {
		return
	}

	body, err := json.Marshal(orderEvent{Action: action, Order: order})
	if err != nil {
		p.logger.Error("Failed to encode webhook body", "order_id", order.ID, "error", err)
		return
	}

	target := webhook.Target{URL: *restaurant.WebhookURL}
	if restaurant.WebhookSecret != nil {
		target.Secret = *restaurant.WebhookSecret
	}
	p.forwarder.Forward(ctx, target, "order."+string(action), body)
}

func (p *Publisher) PublishWaiterCall(_ context.Context, action string, call *waitercalls.Call) {
	if err := p.hub.Publish(call.RestaurantID, realtime.ChannelWaiterCalls, realtime.Action(action), call); err != nil {
		p.logger.Error("Failed to publish waiter call change", "call_id", call.ID, "action", action, "error", err)
	}
}
