package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/restaurants"
)

const (
	restaurantsTable = "restaurants"
	dishesTable      = "dishes"
	credentialsTable = "staff_credentials"
)

var (
	restaurantRowFields = fields(restaurantRow{})
	dishRowFields       = fields(dishRow{})
	credentialRowFields = fields(credentialRow{})
)

type restaurantRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Address        string    `db:"address"`
	Phone          string    `db:"phone"`
	CurrencySymbol string    `db:"currency_symbol"`
	GatewayEnabled bool      `db:"gateway_enabled"`
	WebhookURL     *string   `db:"webhook_url"`
	WebhookSecret  *string   `db:"webhook_secret"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r restaurantRow) ToModel() *restaurants.Restaurant {
	return &restaurants.Restaurant{
		ID:             r.ID,
		Name:           r.Name,
		Address:        r.Address,
		Phone:          r.Phone,
		CurrencySymbol: r.CurrencySymbol,
		GatewayEnabled: r.GatewayEnabled,
		WebhookURL:     r.WebhookURL,
		WebhookSecret:  r.WebhookSecret,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type dishRow struct {
	ID           string    `db:"id"`
	RestaurantID string    `db:"restaurant_id"`
	Name         string    `db:"name"`
	Price        float64   `db:"price"`
	IsAvailable  bool      `db:"is_available"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (d dishRow) ToModel() *restaurants.Dish {
	return &restaurants.Dish{
		ID:           d.ID,
		RestaurantID: d.RestaurantID,
		Name:         d.Name,
		Price:        d.Price,
		IsAvailable:  d.IsAvailable,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type credentialRow struct {
	ID           int64     `db:"id"`
	RestaurantID string    `db:"restaurant_id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *storageImpl) CreateRestaurant(ctx context.Context, restaurant restaurants.Restaurant) (*restaurants.Restaurant, error) {
	params := map[string]interface{}{
		"id":              restaurant.ID,
		"name":            restaurant.Name,
		"address":         restaurant.Address,
		"phone":           restaurant.Phone,
		"currency_symbol": restaurant.CurrencySymbol,
		"gateway_enabled": restaurant.GatewayEnabled,
		"webhook_url":     restaurant.WebhookURL,
		"webhook_secret":  restaurant.WebhookSecret,
		"is_active":       restaurant.IsActive,
		"created_at":      s.now(),
		"updated_at":      s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(restaurantsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetRestaurant(ctx, restaurant.ID)
}

func (s *storageImpl) GetRestaurant(ctx context.Context, id string) (*restaurants.Restaurant, error) {
	q, args, err := s.stmpBuilder().
		Select(restaurantRowFields).
		From(restaurantsTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row restaurantRow
	if err = s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

// GetRestaurantSummary is the narrow view used when pricing orders.
func (s *storageImpl) GetRestaurantSummary(ctx context.Context, id string) (*orders.Restaurant, error) {
	r, err := s.GetRestaurant(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	return &orders.Restaurant{
		ID:             r.ID,
		Name:           r.Name,
		GatewayEnabled: r.GatewayEnabled,
		IsActive:       r.IsActive,
	}, nil
}

// UpdateRestaurant applies non-nil params. An empty webhook url or secret is stored as NULL.
func (s *storageImpl) UpdateRestaurant(ctx context.Context, id string, params restaurants.UpdateParams) (*restaurants.Restaurant, error) {
	query := s.stmpBuilder().
		Update(restaurantsTable).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id})

	if params.Name != nil {
		query = query.Set("name", *params.Name)
	}
	if params.Address != nil {
		query = query.Set("address", *params.Address)
	}
	if params.Phone != nil {
		query = query.Set("phone", *params.Phone)
	}
	if params.CurrencySymbol != nil {
		query = query.Set("currency_symbol", *params.CurrencySymbol)
	}
	if params.GatewayEnabled != nil {
		query = query.Set("gateway_enabled", *params.GatewayEnabled)
	}
	if params.IsActive != nil {
		query = query.Set("is_active", *params.IsActive)
	}
	if params.WebhookURL != nil {
		query = query.Set("webhook_url", nullable(*params.WebhookURL))
	}
	if params.WebhookSecret != nil {
		query = query.Set("webhook_secret", nullable(*params.WebhookSecret))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetRestaurant(ctx, id)
}

func (s *storageImpl) ListRestaurants(ctx context.Context, criteria restaurants.ListCriteria) ([]*restaurants.Restaurant, error) {
	query := s.stmpBuilder().
		Select(restaurantRowFields).
		From(restaurantsTable).
		OrderBy("created_at")

	if criteria.IsActive != nil {
		query = query.Where(sq.Eq{"is_active": *criteria.IsActive})
	}
	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []restaurantRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*restaurants.Restaurant, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.ToModel())
	}
	return result, nil
}

// DeleteRestaurant removes the restaurant together with everything it owns.
func (s *storageImpl) DeleteRestaurant(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{paymentsTable, ordersTable, waiterCallsTable, dishesTable, credentialsTable} {
			q, args, err := s.stmpBuilder().
				Delete(table).
				Where(sq.Eq{"restaurant_id": id}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build sql query: %w", err)
			}
			if _, err = tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}

		q, args, err := s.stmpBuilder().
			Delete(restaurantsTable).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("delete restaurant: %w", err)
		}
		return nil
	})
}

func (s *storageImpl) UpsertDish(ctx context.Context, dish restaurants.Dish) (*restaurants.Dish, error) {
	q, args, err := s.stmpBuilder().
		Insert(dishesTable).
		Columns("id", "restaurant_id", "name", "price", "is_available", "created_at", "updated_at").
		Values(dish.ID, dish.RestaurantID, dish.Name, dish.Price, dish.IsAvailable, s.now(), s.now()).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, price = excluded.price, " +
			"is_available = excluded.is_available, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	q, args, err = s.stmpBuilder().
		Select(dishRowFields).
		From(dishesTable).
		Where(sq.Eq{"id": dish.ID, "restaurant_id": dish.RestaurantID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row dishRow
	if err = s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dish %s belongs to another restaurant", dish.ID)
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) ListDishes(ctx context.Context, restaurantID string, onlyAvailable bool) ([]*restaurants.Dish, error) {
	query := s.stmpBuilder().
		Select(dishRowFields).
		From(dishesTable).
		Where(sq.Eq{"restaurant_id": restaurantID}).
		OrderBy("name")

	if onlyAvailable {
		query = query.Where(sq.Eq{"is_available": true})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []dishRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*restaurants.Dish, 0, len(rows))
	for _, d := range rows {
		result = append(result, d.ToModel())
	}
	return result, nil
}

// ListDishesByIDs resolves order lines. Unavailable dishes are returned too so
// the caller can tell "sold out" from "unknown".
func (s *storageImpl) ListDishesByIDs(ctx context.Context, restaurantID string, ids []string) ([]*orders.Dish, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q, args, err := s.stmpBuilder().
		Select(dishRowFields).
		From(dishesTable).
		Where(sq.Eq{"restaurant_id": restaurantID, "id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []dishRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*orders.Dish, 0, len(rows))
	for _, d := range rows {
		result = append(result, &orders.Dish{
			ID:           d.ID,
			RestaurantID: d.RestaurantID,
			Name:         d.Name,
			Price:        d.Price,
			IsAvailable:  d.IsAvailable,
		})
	}
	return result, nil
}

func (s *storageImpl) CreateCredential(ctx context.Context, credential restaurants.Credential) (*restaurants.Credential, error) {
	q, args, err := s.stmpBuilder().
		Insert(credentialsTable).
		SetMap(map[string]interface{}{
			"restaurant_id": credential.RestaurantID,
			"username":      credential.Username,
			"password_hash": credential.PasswordHash,
			"created_at":    s.now(),
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetCredentialByUsername(ctx, credential.Username)
}

func (s *storageImpl) GetCredentialByUsername(ctx context.Context, username string) (*restaurants.Credential, error) {
	q, args, err := s.stmpBuilder().
		Select(credentialRowFields).
		From(credentialsTable).
		Where(sq.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row credentialRow
	if err = s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return &restaurants.Credential{
		ID:           row.ID,
		RestaurantID: row.RestaurantID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
