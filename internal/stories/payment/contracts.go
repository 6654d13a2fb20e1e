package payment

import (
	"context"

	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"dinedesk/internal/stories/orders"
)

type (
	// Storage provides database operations for payments
	Storage interface {
		CreatePayment(ctx context.Context, payment Payment) (*Payment, error)
		GetPayment(ctx context.Context, criteria GetCriteria) (*Payment, error)
		UpdatePayment(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Payment, error)
		ListPayments(ctx context.Context, criteria ListCriteria) ([]*Payment, error)
	}

	// YooKassaClient provides YooKassa API operations
	YooKassaClient interface {
		CreatePayment(ctx context.Context, amount float64, description string, metadata map[string]string, idempotencyKey string) (*yoopayment.Payment, error)
		GetPaymentStatus(ctx context.Context, paymentID string) (*yoopayment.Payment, error)
	}

	// OrderUpdater propagates payment results onto the order
	OrderUpdater interface {
		SetPaymentStatus(ctx context.Context, restaurantID, orderID string, to orders.PaymentStatus, method *orders.PaymentMethod, source string) (*orders.Order, error)
	}
)
