package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"dinedesk/internal/stories/orders"
)

const ordersTable = "orders"

var orderRowFields = fields(orderRow{})

type orderRow struct {
	ID              string    `db:"id"`
	RestaurantID    string    `db:"restaurant_id"`
	UniqueOrderID   string    `db:"unique_order_id"`
	IdempotencyKey  *string   `db:"idempotency_key"`
	Status          string    `db:"status"`
	PaymentStatus   string    `db:"payment_status"`
	PaymentMethod   string    `db:"payment_method"`
	OrderType       string    `db:"order_type"`
	Items           string    `db:"items"`
	Subtotal        float64   `db:"subtotal"`
	GatewayCharge   float64   `db:"gateway_charge"`
	TotalAmount     float64   `db:"total_amount"`
	CustomerName    string    `db:"customer_name"`
	CustomerPhone   string    `db:"customer_phone"`
	TableNumber     *string   `db:"table_number"`
	CustomerAddress *string   `db:"customer_address"`
	CustomerNote    *string   `db:"customer_note"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r orderRow) ToModel() (*orders.Order, error) {
	var items []orders.Item
	if r.Items != "" {
		if err := json.Unmarshal([]byte(r.Items), &items); err != nil {
			return nil, fmt.Errorf("decode items of order %s: %w", r.ID, err)
		}
	}

	return &orders.Order{
		ID:              r.ID,
		RestaurantID:    r.RestaurantID,
		UniqueOrderID:   r.UniqueOrderID,
		Status:          orders.Status(r.Status),
		PaymentStatus:   orders.PaymentStatus(r.PaymentStatus),
		PaymentMethod:   orders.PaymentMethod(r.PaymentMethod),
		OrderType:       orders.Type(r.OrderType),
		Items:           items,
		Subtotal:        r.Subtotal,
		GatewayCharge:   r.GatewayCharge,
		TotalAmount:     r.TotalAmount,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		TableNumber:     r.TableNumber,
		CustomerAddress: r.CustomerAddress,
		CustomerNote:    r.CustomerNote,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func (s *storageImpl) CreateOrder(ctx context.Context, order orders.Order, idempotencyKey *string) (*orders.Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	now := s.now()
	params := map[string]interface{}{
		"id":               order.ID,
		"restaurant_id":    order.RestaurantID,
		"unique_order_id":  order.UniqueOrderID,
		"idempotency_key":  idempotencyKey,
		"status":           string(order.Status),
		"payment_status":   string(order.PaymentStatus),
		"payment_method":   string(order.PaymentMethod),
		"order_type":       string(order.OrderType.Normalize()),
		"items":            string(items),
		"subtotal":         order.Subtotal,
		"gateway_charge":   order.GatewayCharge,
		"total_amount":     order.TotalAmount,
		"customer_name":    order.CustomerName,
		"customer_phone":   order.CustomerPhone,
		"table_number":     order.TableNumber,
		"customer_address": order.CustomerAddress,
		"customer_note":    order.CustomerNote,
		"created_at":       now,
		"updated_at":       now,
	}

	q, args, err := s.stmpBuilder().
		Insert(ordersTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		switch {
		case isUniqueOn(err, "idempotency_key"):
			return nil, fmt.Errorf("insert order: %w", orders.ErrDuplicateIdempotencyKey)
		case isUniqueOn(err, "unique_order_id"):
			return nil, fmt.Errorf("insert order: %w", orders.ErrDuplicateCode)
		}
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetOrder(ctx, orders.GetCriteria{RestaurantID: order.RestaurantID, ID: &order.ID})
}

func (s *storageImpl) GetOrder(ctx context.Context, criteria orders.GetCriteria) (*orders.Order, error) {
	query := s.stmpBuilder().
		Select(orderRowFields).
		From(ordersTable).
		Where(sq.Eq{"restaurant_id": criteria.RestaurantID}).
		Limit(1)
	query = applyOrderCriteria(query, criteria)

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row orderRow
	if err = s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel()
}

func (s *storageImpl) ListOrders(ctx context.Context, criteria orders.ListCriteria) ([]*orders.Order, error) {
	query := s.stmpBuilder().
		Select(orderRowFields).
		From(ordersTable).
		Where(sq.Eq{"restaurant_id": criteria.RestaurantID}).
		OrderBy("created_at DESC", "id")

	if len(criteria.Statuses) > 0 {
		statuses := make([]string, 0, len(criteria.Statuses))
		for _, st := range criteria.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
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

	var rows []orderRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*orders.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.ToModel()
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, nil
}

// UpdateOrder applies params and returns the stored row. When ExpectStatus is
// set and does not match, nothing is written and the current row is returned.
func (s *storageImpl) UpdateOrder(ctx context.Context, criteria orders.GetCriteria, params orders.UpdateParams) (*orders.Order, error) {
	query := s.stmpBuilder().
		Update(ordersTable).
		Set("updated_at", s.now()).
		Where(sq.Eq{"restaurant_id": criteria.RestaurantID})
	query = applyOrderUpdateCriteria(query, criteria)

	if params.ExpectStatus != nil {
		query = query.Where(sq.Eq{"status": string(*params.ExpectStatus)})
	}
	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.PaymentStatus != nil {
		query = query.Set("payment_status", string(*params.PaymentStatus))
	}
	if params.PaymentMethod != nil {
		query = query.Set("payment_method", string(*params.PaymentMethod))
	}
	if params.Pricing != nil {
		query = query.
			Set("subtotal", params.Pricing.Subtotal).
			Set("gateway_charge", params.Pricing.GatewayCharge).
			Set("total_amount", params.Pricing.Total)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetOrder(ctx, criteria)
}

func (s *storageImpl) DeleteOrder(ctx context.Context, criteria orders.GetCriteria) error {
	order, err := s.GetOrder(ctx, criteria)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := s.stmpBuilder().
			Delete(paymentsTable).
			Where(sq.Eq{"order_id": order.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}

		q, args, err = s.stmpBuilder().
			Delete(ordersTable).
			Where(sq.Eq{"id": order.ID, "restaurant_id": order.RestaurantID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
}

func applyOrderCriteria(query sq.SelectBuilder, criteria orders.GetCriteria) sq.SelectBuilder {
	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.UniqueOrderID != nil {
		query = query.Where(sq.Eq{"unique_order_id": *criteria.UniqueOrderID})
	}
	if criteria.IdempotencyKey != nil {
		query = query.Where(sq.Eq{"idempotency_key": *criteria.IdempotencyKey})
	}
	return query
}

func applyOrderUpdateCriteria(query sq.UpdateBuilder, criteria orders.GetCriteria) sq.UpdateBuilder {
	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.UniqueOrderID != nil {
		query = query.Where(sq.Eq{"unique_order_id": *criteria.UniqueOrderID})
	}
	return query
}
