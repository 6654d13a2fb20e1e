package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"dinedesk/internal/stories/waitercalls"
)

const waiterCallsTable = "waiter_calls"

var waiterCallRowFields = fields(waiterCallRow{})

type waiterCallRow struct {
	ID           string    `db:"id"`
	RestaurantID string    `db:"restaurant_id"`
	CustomerName string    `db:"customer_name"`
	TableNumber  string    `db:"table_number"`
	Message      string    `db:"message"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (w waiterCallRow) ToModel() *waitercalls.Call {
	return &waitercalls.Call{
		ID:           w.ID,
		RestaurantID: w.RestaurantID,
		CustomerName: w.CustomerName,
		TableNumber:  w.TableNumber,
		Message:      w.Message,
		Status:       waitercalls.Status(w.Status),
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

func (s *storageImpl) CreateWaiterCall(ctx context.Context, call waitercalls.Call) (*waitercalls.Call, error) {
	params := map[string]interface{}{
		"id":            call.ID,
		"restaurant_id": call.RestaurantID,
		"customer_name": call.CustomerName,
		"table_number":  call.TableNumber,
		"message":       call.Message,
		"status":        string(call.Status),
		"created_at":    call.CreatedAt,
		"updated_at":    call.UpdatedAt,
	}

	q, args, err := s.stmpBuilder().
		Insert(waiterCallsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetWaiterCall(ctx, waitercalls.GetCriteria{RestaurantID: call.RestaurantID, ID: call.ID})
}

func (s *storageImpl) GetWaiterCall(ctx context.Context, criteria waitercalls.GetCriteria) (*waitercalls.Call, error) {
	q, args, err := s.stmpBuilder().
		Select(waiterCallRowFields).
		From(waiterCallsTable).
		Where(sq.Eq{"id": criteria.ID, "restaurant_id": criteria.RestaurantID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var row waiterCallRow
	if err = s.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return row.ToModel(), nil
}

func (s *storageImpl) ListWaiterCalls(ctx context.Context, criteria waitercalls.ListCriteria) ([]*waitercalls.Call, error) {
	query := s.stmpBuilder().
		Select(waiterCallRowFields).
		From(waiterCallsTable).
		OrderBy("created_at")

	if criteria.RestaurantID != nil {
		query = query.Where(sq.Eq{"restaurant_id": *criteria.RestaurantID})
	}
	if len(criteria.Statuses) > 0 {
		statuses := make([]string, 0, len(criteria.Statuses))
		for _, st := range criteria.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if criteria.CreatedBefore != nil {
		query = query.Where(sq.Lt{"created_at": *criteria.CreatedBefore})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []waiterCallRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*waitercalls.Call, 0, len(rows))
	for _, w := range rows {
		result = append(result, w.ToModel())
	}
	return result, nil
}

// UpdateWaiterCallStatus moves the call only if it is still in status from.
func (s *storageImpl) UpdateWaiterCallStatus(ctx context.Context, criteria waitercalls.GetCriteria, from, to waitercalls.Status) (*waitercalls.Call, error) {
	q, args, err := s.stmpBuilder().
		Update(waiterCallsTable).
		Set("status", string(to)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": criteria.ID, "restaurant_id": criteria.RestaurantID, "status": string(from)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetWaiterCall(ctx, criteria)
}
