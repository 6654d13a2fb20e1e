package restaurants

import "time"

type Restaurant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	CurrencySymbol string    `json:"currency_symbol"`
	GatewayEnabled bool      `json:"gateway_enabled"`
	WebhookURL     *string   `json:"webhook_url,omitempty"`
	WebhookSecret  *string   `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasWebhook reports whether order events should be forwarded.
func (r *Restaurant) HasWebhook() bool {
	return r.WebhookURL != nil && *r.WebhookURL != ""
}

type Dish struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	IsAvailable  bool      `json:"is_available"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Credential struct {
	ID           int64
	RestaurantID string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// IssuedCredential is returned once, the password is never stored in clear.
type IssuedCredential struct {
	RestaurantID string `json:"restaurant_id"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type CreateRequest struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	CurrencySymbol string `json:"currency_symbol"`
	GatewayEnabled bool   `json:"gateway_enabled"`
}

type UpdateParams struct {
	Name           *string `json:"name"`
	Address        *string `json:"address"`
	Phone          *string `json:"phone"`
	CurrencySymbol *string `json:"currency_symbol"`
	GatewayEnabled *bool   `json:"gateway_enabled"`
	IsActive       *bool   `json:"is_active"`
	WebhookURL     *string `json:"-"`
	WebhookSecret  *string `json:"-"`
}

type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type DishRequest struct {
	ID          *string `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	IsAvailable *bool   `json:"is_available"`
}

type ListCriteria struct {
	IsActive *bool
	Limit    int
	Offset   int
}
