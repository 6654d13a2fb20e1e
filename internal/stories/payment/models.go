package payment

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsFinal reports whether the gateway will not change the status anymore.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Payment struct {
	ID           int64
	OrderID      string
	RestaurantID string
	Amount       float64
	Status       Status
	YooKassaID   *string
	PaymentURL   *string
	Checks       int
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type GetCriteria struct {
	ID         *int64
	OrderID    *string
	YooKassaID *string
}

type ListCriteria struct {
	Statuses  []Status
	MaxChecks *int
	Limit     int
}

type UpdateParams struct {
	Status         *Status
	YooKassaID     *string
	PaymentURL     *string
	ProcessedAt    *time.Time
	IncrementCheck bool
}

// Checkout is what the guest needs to complete an online payment.
type Checkout struct {
	PaymentID   int64  `json:"payment_id"`
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Status      Status `json:"status"`
}
