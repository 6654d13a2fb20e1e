package restaurants

import "context"

type (
	Storage interface {
		CreateRestaurant(ctx context.Context, restaurant Restaurant) (*Restaurant, error)
		GetRestaurant(ctx context.Context, id string) (*Restaurant, error)
		UpdateRestaurant(ctx context.Context, id string, params UpdateParams) (*Restaurant, error)
		ListRestaurants(ctx context.Context, criteria ListCriteria) ([]*Restaurant, error)
		DeleteRestaurant(ctx context.Context, id string) error

		UpsertDish(ctx context.Context, dish Dish) (*Dish, error)
		ListDishes(ctx context.Context, restaurantID string, onlyAvailable bool) ([]*Dish, error)

		CreateCredential(ctx context.Context, credential Credential) (*Credential, error)
		GetCredentialByUsername(ctx context.Context, username string) (*Credential, error)
	}

	TokenIssuer interface {
		Issue(restaurantID, username string) (string, error)
	}
)
