package yookassa

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rvinnie/yookassa-sdk-go/yookassa"
	yoocommon "github.com/rvinnie/yookassa-sdk-go/yookassa/common"
	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"
)

// Client wraps the YooKassa SDK client
type Client struct {
	client    *yookassa.Client
	logger    *slog.Logger
	returnURL string
	currency  string
}

// NewClient creates a new YooKassa client wrapper
func NewClient(shopID, secretKey, returnURL, currency string, logger *slog.Logger) *Client {
	return &Client{
		client:    yookassa.NewClient(shopID, secretKey),
		logger:    logger,
		returnURL: returnURL,
		currency:  currency,
	}
}

// CreatePayment creates a redirect payment. Repeating the call with the same
// idempotency key returns the payment created first.
func (c *Client) CreatePayment(_ context.Context, amount float64, description string, metadata map[string]string, idempotencyKey string) (*yoopayment.Payment, error) {
	c.logger.Info("Creating payment in YooKassa", "amount", amount, "idempotency_key", idempotencyKey)

	payment := &yoopayment.Payment{
		Amount: &yoocommon.Amount{
			Value:    fmt.Sprintf("%.2f", amount),
			Currency: c.currency,
		},
		Confirmation: &yoopayment.Redirect{
			Type:      yoopayment.TypeRedirect,
			ReturnURL: c.returnURL,
		},
		Description: description,
		Metadata:    metadata,
		Capture:     true,
	}

	paymentHandler := yookassa.NewPaymentHandler(c.client).WithIdempotencyKey(idempotencyKey)
	result, err := paymentHandler.CreatePayment(payment)
	if err != nil {
		c.logger.Error("Failed to create payment in YooKassa", "error", err)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	c.logger.Info("Payment created successfully in YooKassa", "payment_id", result.ID, "status", result.Status)
	return result, nil
}

// GetPaymentStatus gets payment status from YooKassa
func (c *Client) GetPaymentStatus(_ context.Context, paymentID string) (*yoopayment.Payment, error) {
	c.logger.Debug("Getting payment status from YooKassa", "payment_id", paymentID)

	paymentHandler := yookassa.NewPaymentHandler(c.client)
	result, err := paymentHandler.FindPayment(paymentID)
	if err != nil {
		c.logger.Error("Failed to get payment status", "error", err, "payment_id", paymentID)
		return nil, fmt.Errorf("failed to get payment status: %w", err)
	}

	c.logger.Debug("Payment status retrieved", "payment_id", paymentID, "status", result.Status)
	return result, nil
}
