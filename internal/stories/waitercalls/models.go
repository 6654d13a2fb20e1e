package waitercalls

import "time"

type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusCompleted    Status = "completed"
)

type Call struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	CustomerName string    `json:"customer_name"`
	TableNumber  string    `json:"table_number"`
	Message      string    `json:"message"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateRequest struct {
	RestaurantID string
	CustomerName string
	TableNumber  string
	Message      string
}

type GetCriteria struct {
	RestaurantID string
	ID           string
}

type ListCriteria struct {
	RestaurantID  *string
	Statuses      []Status
	CreatedBefore *time.Time
}
