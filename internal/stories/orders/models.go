package orders

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusServed     Status = "served"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentVerifying     PaymentStatus = "verifying"
	PaymentCompleted     PaymentStatus = "completed"
	PaymentFailed        PaymentStatus = "failed"
	PaymentNotConfigured PaymentStatus = "not_configured"
)

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

type Type string

const (
	TypeDineIn Type = "dine_in"
	TypeOnline Type = "online"
)

// Normalize maps an absent order type to dine-in.
func (t Type) Normalize() Type {
	if t == "" {
		return TypeDineIn
	}
	return t
}

type Item struct {
	DishID    string  `json:"dish_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

type Order struct {
	ID              string        `json:"id"`
	RestaurantID    string        `json:"restaurant_id"`
	UniqueOrderID   string        `json:"unique_order_id"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	OrderType       Type          `json:"order_type"`
	Items           []Item        `json:"items"`
	Subtotal        float64       `json:"subtotal"`
	GatewayCharge   float64       `json:"gateway_charge"`
	TotalAmount     float64       `json:"total_amount"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	TableNumber     *string       `json:"table_number,omitempty"`
	CustomerAddress *string       `json:"customer_address,omitempty"`
	CustomerNote    *string       `json:"customer_note,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// Replayed is set when the order was returned for a repeated idempotency key.
	Replayed bool `json:"-"`
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

// IsOnline reports whether the order is delivered rather than served at a table.
func (o *Order) IsOnline() bool {
	return o.OrderType.Normalize() == TypeOnline
}

// Patch carries the mutable fields of an order. Nil fields are left untouched.
type Patch struct {
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
}

// Apply writes p onto o and returns the prior values of the touched fields.
func (p Patch) Apply(o *Order) Patch {
	var prior Patch
	if p.Status != nil {
		prev := o.Status
		prior.Status = &prev
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		prev := o.PaymentStatus
		prior.PaymentStatus = &prev
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		prev := o.PaymentMethod
		prior.PaymentMethod = &prev
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.UpdatedAt != nil {
		prev := o.UpdatedAt
		prior.UpdatedAt = &prev
		o.UpdatedAt = *p.UpdatedAt
	}
	return prior
}

// IsEmpty reports whether the patch touches nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.PaymentMethod == nil && p.UpdatedAt == nil
}

type ItemRequest struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	RestaurantID    string
	IdempotencyKey  *string
	OrderType       Type
	PaymentMethod   PaymentMethod
	Items           []ItemRequest
	CustomerName    string
	CustomerPhone   string
	TableNumber     *string
	CustomerAddress *string
	CustomerNote    *string
}

type GetCriteria struct {
	RestaurantID   string
	ID             *string
	UniqueOrderID  *string
	IdempotencyKey *string
}

type ListCriteria struct {
	RestaurantID string
	Statuses     []Status
	Limit        int
	Offset       int
}

// UpdateParams is a guarded update: ExpectStatus, when set, must match the stored status.
type UpdateParams struct {
	ExpectStatus  *Status
	Status        *Status
	PaymentStatus *PaymentStatus
	PaymentMethod *PaymentMethod
	Pricing       *Quote
}

type Dish struct {
	ID           string
	RestaurantID string
	Name         string
	Price        float64
	IsAvailable  bool
}

type Restaurant struct {
	ID             string
	Name           string
	GatewayEnabled bool
	IsActive       bool
}
