package orders

import "context"

type (
	// Storage provides database operations for orders
	Storage interface {
		CreateOrder(ctx context.Context, order Order, idempotencyKey *string) (*Order, error)
		GetOrder(ctx context.Context, criteria GetCriteria) (*Order, error)
		ListOrders(ctx context.Context, criteria ListCriteria) ([]*Order, error)
		UpdateOrder(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Order, error)
		DeleteOrder(ctx context.Context, criteria GetCriteria) error
	}

	// MenuStorage resolves the restaurant and its dishes when pricing an order
	MenuStorage interface {
		GetRestaurantSummary(ctx context.Context, restaurantID string) (*Restaurant, error)
		ListDishesByIDs(ctx context.Context, restaurantID string, ids []string) ([]*Dish, error)
	}

	// Publisher pushes row changes to realtime subscribers
	Publisher interface {
		PublishOrder(ctx context.Context, action ChangeAction, order *Order)
	}
)

type ChangeAction string

const (
	ChangeInsert ChangeAction = "insert"
	ChangeUpdate ChangeAction = "update"
	ChangeDelete ChangeAction = "delete"
)
