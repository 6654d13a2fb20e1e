package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"dinedesk/internal/stories/orders"
)

// Service provides business logic for online order payments
type Service struct {
	storage        Storage
	yookassaClient YooKassaClient
	orderUpdater   OrderUpdater
	logger         *slog.Logger
	mockPayment    bool
	now            func() time.Time
}

// NewService creates a new payment service
func NewService(storage Storage, yookassaClient YooKassaClient, orderUpdater OrderUpdater, mockPayment bool, logger *slog.Logger) *Service {
	return &Service{
		storage:        storage,
		yookassaClient: yookassaClient,
		orderUpdater:   orderUpdater,
		logger:         logger,
		mockPayment:    mockPayment,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// StartCheckout creates a gateway payment for an online order and returns the hosted checkout URL.
// Calling it again for the same order returns the existing checkout.
func (s *Service) StartCheckout(ctx context.Context, order *orders.Order) (*Checkout, error) {
	s.logger.Info("Starting checkout",
		"order_id", order.ID,
		"amount", order.TotalAmount,
		"mock_mode", s.mockPayment,
	)

	if order.PaymentMethod != orders.PaymentMethodOnline {
		return nil, fmt.Errorf("order %s is not paid online", order.ID)
	}
	if order.PaymentStatus == orders.PaymentNotConfigured {
		return nil, fmt.Errorf("online payment is not configured for restaurant %s", order.RestaurantID)
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	existing, err := s.storage.GetPayment(ctx, GetCriteria{OrderID: &order.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}
	if existing != nil {
		return toCheckout(existing), nil
	}

	if s.mockPayment {
		return s.createMockPayment(ctx, order)
	}

	// 1. Local record first so the webhook can always be matched
	created, err := s.storage.CreatePayment(ctx, Payment{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Amount:       order.TotalAmount,
		Status:       StatusPending,
	})
	if err != nil {
		s.logger.Error("Failed to create payment in storage", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("failed to create payment in storage: %w", err)
	}

	// 2. Gateway call; the order id doubles as idempotency key
	metadata := map[string]string{
		"internal_payment_id": fmt.Sprintf("%d", created.ID),
		"order_id":            order.ID,
		"restaurant_id":       order.RestaurantID,
	}
	description := fmt.Sprintf("Order %s", order.UniqueOrderID)

	yookassaPayment, err := s.yookassaClient.CreatePayment(ctx, created.Amount, description, metadata, order.ID)
	if err != nil {
		s.logger.Error("Failed to create payment in YooKassa",
			"error", err,
			"payment_id", created.ID,
			"amount", created.Amount,
		)
		return nil, fmt.Errorf("failed to create payment in YooKassa: %w", err)
	}

	s.logger.Info("Payment created in YooKassa",
		"payment_id", created.ID,
		"yookassa_id", yookassaPayment.ID,
		"status", yookassaPayment.Status,
	)

	// 3. Store gateway id and confirmation URL
	updateParams := UpdateParams{YooKassaID: &yookassaPayment.ID}
	if confirmationURL := extractPaymentURL(yookassaPayment); confirmationURL != "" {
		updateParams.PaymentURL = &confirmationURL
	} else {
		s.logger.Warn("No payment URL in YooKassa response", "payment_id", created.ID)
	}

	updated, err := s.storage.UpdatePayment(ctx, GetCriteria{ID: &created.ID}, updateParams)
	if err != nil {
		s.logger.Error("Failed to update payment with YooKassa data",
			"error", err,
			"payment_id", created.ID,
			"yookassa_id", yookassaPayment.ID,
		)
		return nil, fmt.Errorf("failed to update payment with YooKassa data: %w", err)
	}

	return toCheckout(updated), nil
}

func (s *Service) createMockPayment(ctx context.Context, order *orders.Order) (*Checkout, error) {
	now := s.now()
	created, err := s.storage.CreatePayment(ctx, Payment{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Amount:       order.TotalAmount,
		Status:       StatusCompleted,
		ProcessedAt:  &now,
	})
	if err != nil {
		s.logger.Error("Failed to create mock payment in storage", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("failed to create mock payment in storage: %w", err)
	}

	if err := s.propagate(ctx, created); err != nil {
		return nil, err
	}

	s.logger.Info("Mock payment created with completed status", "payment_id", created.ID, "order_id", order.ID)
	return toCheckout(created), nil
}

// CheckPaymentStatus checks the payment with YooKassa, stores the result and
// propagates it onto the order.
func (s *Service) CheckPaymentStatus(ctx context.Context, paymentID int64) (*Payment, error) {
	criteria := GetCriteria{ID: &paymentID}
	payment, err := s.storage.GetPayment(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment from storage: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment not found: %d", paymentID)
	}
	if payment.Status.IsFinal() {
		return payment, nil
	}

	var newStatus Status
	if s.mockPayment {
		newStatus = StatusCompleted
	} else {
		if payment.YooKassaID == nil {
			return nil, fmt.Errorf("payment %d has no YooKassaID", paymentID)
		}
		yookassaPayment, err := s.yookassaClient.GetPaymentStatus(ctx, *payment.YooKassaID)
		if err != nil {
			if _, incErr := s.storage.UpdatePayment(ctx, criteria, UpdateParams{IncrementCheck: true}); incErr != nil {
				s.logger.Error("Failed to count payment check", "error", incErr, "payment_id", paymentID)
			}
			return nil, fmt.Errorf("failed to get payment status from YooKassa: %w", err)
		}
		newStatus = mapYooKassaStatusToInternal(yookassaPayment.Status)
	}

	updateParams := UpdateParams{IncrementCheck: true}
	if newStatus != payment.Status {
		s.logger.Info("Payment status changed",
			"payment_id", paymentID,
			"old_status", payment.Status,
			"new_status", newStatus,
		)
		updateParams.Status = &newStatus
		if newStatus.IsFinal() {
			now := s.now()
			updateParams.ProcessedAt = &now
		}
	}

	updated, err := s.storage.UpdatePayment(ctx, criteria, updateParams)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	if newStatus != payment.Status {
		if err := s.propagate(ctx, updated); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// HandleNotification processes a gateway webhook. The body is not trusted: the
// status is re-read from the gateway.
func (s *Service) HandleNotification(ctx context.Context, yookassaID string) (*Payment, error) {
	payment, err := s.storage.GetPayment(ctx, GetCriteria{YooKassaID: &yookassaID})
	if err != nil {
		return nil, fmt.Errorf("failed to get payment from storage: %w", err)
	}
	if payment == nil {
		s.logger.Warn("Webhook for unknown payment", "yookassa_id", yookassaID)
		return nil, nil
	}
	return s.CheckPaymentStatus(ctx, payment.ID)
}

// ListAwaiting returns payments still waiting for the gateway that were checked fewer than maxChecks times.
func (s *Service) ListAwaiting(ctx context.Context, maxChecks int) ([]*Payment, error) {
	return s.storage.ListPayments(ctx, ListCriteria{
		Statuses:  []Status{StatusPending, StatusVerifying},
		MaxChecks: &maxChecks,
	})
}

// IsMockPayment returns true if mock payment mode is enabled
func (s *Service) IsMockPayment() bool {
	return s.mockPayment
}

func (s *Service) propagate(ctx context.Context, p *Payment) error {
	to := toOrderStatus(p.Status)
	method := orders.PaymentMethodOnline
	_, err := s.orderUpdater.SetPaymentStatus(ctx, p.RestaurantID, p.OrderID, to, &method, "gateway")
	if errors.Is(err, orders.ErrInvalidPaymentChange) {
		// Settled some other way, usually cash at the counter.
		s.logger.Warn("Order payment already settled, gateway status ignored",
			"error", err,
			"payment_id", p.ID,
			"order_id", p.OrderID,
			"status", p.Status,
		)
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to propagate payment status to order",
			"error", err,
			"payment_id", p.ID,
			"order_id", p.OrderID,
			"status", p.Status,
		)
		return fmt.Errorf("failed to propagate payment status: %w", err)
	}
	return nil
}

func toCheckout(p *Payment) *Checkout {
	c := &Checkout{PaymentID: p.ID, OrderID: p.OrderID, Status: p.Status}
	if p.PaymentURL != nil {
		c.CheckoutURL = *p.PaymentURL
	}
	return c
}

func toOrderStatus(s Status) orders.PaymentStatus {
	switch s {
	case StatusVerifying:
		return orders.PaymentVerifying
	case StatusCompleted:
		return orders.PaymentCompleted
	case StatusFailed:
		return orders.PaymentFailed
	default:
		return orders.PaymentPending
	}
}

// extractPaymentURL returns the hosted checkout URL from the confirmation block
func extractPaymentURL(payment *yoopayment.Payment) string {
	if payment.Confirmation == nil {
		return ""
	}

	if redirect, ok := payment.Confirmation.(*yoopayment.Redirect); ok {
		return redirect.ConfirmationURL
	}

	// the SDK sometimes decodes confirmation into a map
	if confMap, ok := payment.Confirmation.(map[string]interface{}); ok {
		if url, exists := confMap["confirmation_url"].(string); exists {
			return url
		}
	}

	return ""
}

// mapYooKassaStatusToInternal maps YooKassa payment status to our internal status
func mapYooKassaStatusToInternal(yookassaStatus yoopayment.Status) Status {
	switch yookassaStatus {
	case yoopayment.Pending:
		return StatusPending
	case yoopayment.WaitingForCapture:
		return StatusVerifying
	case yoopayment.Succeeded:
		return StatusCompleted
	case yoopayment.Canceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
