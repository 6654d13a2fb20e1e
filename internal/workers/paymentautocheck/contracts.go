package paymentautocheck

import (
	"context"

	"dinedesk/internal/stories/payment"
)

type (
	// PaymentService checks online payments against the gateway
	PaymentService interface {
		ListAwaiting(ctx context.Context, maxChecks int) ([]*payment.Payment, error)
		CheckPaymentStatus(ctx context.Context, paymentID int64) (*payment.Payment, error)
		IsMockPayment() bool
	}
)
