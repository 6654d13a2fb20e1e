package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"dinedesk/internal/stories/payment"
)

const paymentsTable = "payments"

var paymentRowFields = fields(paymentRow{})

type paymentRow struct {
	ID           int64      `db:"id"`
	OrderID      string     `db:"order_id"`
	RestaurantID string     `db:"restaurant_id"`
	Amount       float64    `db:"amount"`
	Status       string     `db:"status"`
	YooKassaID   *string    `db:"yookassa_id"`
	PaymentURL   *string    `db:"payment_url"`
	Checks       int        `db:"checks"`
	ProcessedAt  *time.Time `db:"processed_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (p paymentRow) ToModel() *payment.Payment {
	return &payment.Payment{
		ID:           p.ID,
		OrderID:      p.OrderID,
		RestaurantID: p.RestaurantID,
		Amount:       p.Amount,
		Status:       payment.Status(p.Status),
		YooKassaID:   p.YooKassaID,
		PaymentURL:   p.PaymentURL,
		Checks:       p.Checks,
		ProcessedAt:  p.ProcessedAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (s *storageImpl) CreatePayment(ctx context.Context, paymentEntity payment.Payment) (*payment.Payment, error) {
	params := map[string]interface{}{
		"order_id":      paymentEntity.OrderID,
		"restaurant_id": paymentEntity.RestaurantID,
		"amount":        paymentEntity.Amount,
		"status":        string(paymentEntity.Status),
		"yookassa_id":   paymentEntity.YooKassaID,
		"payment_url":   paymentEntity.PaymentURL,
		"checks":        paymentEntity.Checks,
		"processed_at":  paymentEntity.ProcessedAt,
		"created_at":    s.now(),
		"updated_at":    s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(paymentsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetPayment(ctx, payment.GetCriteria{ID: &id})
}

func (s *storageImpl) GetPayment(ctx context.Context, criteria payment.GetCriteria) (*payment.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable).
		OrderBy("id DESC").
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.OrderID != nil {
		query = query.Where(sq.Eq{"order_id": *criteria.OrderID})
	}
	if criteria.YooKassaID != nil {
		query = query.Where(sq.Eq{"yookassa_id": *criteria.YooKassaID})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var p paymentRow
	if err = s.db.GetContext(ctx, &p, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.GetContext: %w", err)
	}

	return p.ToModel(), nil
}

func (s *storageImpl) UpdatePayment(ctx context.Context, criteria payment.GetCriteria, params payment.UpdateParams) (*payment.Payment, error) {
	query := s.stmpBuilder().
		Update(paymentsTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.OrderID != nil {
		query = query.Where(sq.Eq{"order_id": *criteria.OrderID})
	}
	if criteria.YooKassaID != nil {
		query = query.Where(sq.Eq{"yookassa_id": *criteria.YooKassaID})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.YooKassaID != nil {
		query = query.Set("yookassa_id", *params.YooKassaID)
	}
	if params.PaymentURL != nil {
		query = query.Set("payment_url", *params.PaymentURL)
	}
	if params.ProcessedAt != nil {
		query = query.Set("processed_at", *params.ProcessedAt)
	}
	if params.IncrementCheck {
		query = query.Set("checks", sq.Expr("checks + 1"))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetPayment(ctx, criteria)
}

func (s *storageImpl) ListPayments(ctx context.Context, criteria payment.ListCriteria) ([]*payment.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable).
		OrderBy("created_at")

	if len(criteria.Statuses) > 0 {
		statuses := make([]string, 0, len(criteria.Statuses))
		for _, st := range criteria.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if criteria.MaxChecks != nil {
		query = query.Where(sq.Lt{"checks": *criteria.MaxChecks})
	}
	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	var rows []paymentRow
	if err = s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext: %w", err)
	}

	result := make([]*payment.Payment, 0, len(rows))
	for _, p := range rows {
		result = append(result, p.ToModel())
	}
	return result, nil
}
