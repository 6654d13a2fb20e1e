package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/payment"
	"dinedesk/internal/stories/waitercalls"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to the server API on behalf of one restaurant's staff account.
type Client struct {
	baseURL      string
	restaurantID string
	username     string
	password     string
	http         *http.Client
	logger       *slog.Logger

	mu    sync.Mutex
	token string
}

type Credentials struct {
	RestaurantID string
	Username     string
	Password     string
}

func NewClient(baseURL string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		restaurantID: creds.RestaurantID,
		username:     creds.Username,
		password:     creds.Password,
		http:         httpClient,
		logger:       logger,
	}
}

func (c *Client) RestaurantID() string {
	return c.restaurantID
}

// Token returns the cached staff token, logging in when there is none.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token        string `json:"token"`
		RestaurantID string `json:"restaurant_id"`
	}
	if err := c.send(req, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.RestaurantID != c.restaurantID {
		return "", fmt.Errorf("login: account belongs to restaurant %s, not %s", out.RestaurantID, c.restaurantID)
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	c.logger.Info("Logged in to backend", "restaurant_id", c.restaurantID, "username", c.username)
	return out.Token, nil
}

func (c *Client) dropToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

// FeedURL is the websocket address of a realtime channel for this restaurant.
func (c *Client) FeedURL(channel realtime.Channel) string {
	u := c.baseURL + c.restaurantPath("/feed/"+strings.ReplaceAll(string(channel), "_", "-"))
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) restaurantPath(suffix string) string {
	return "/api/restaurants/" + url.PathEscape(c.restaurantID) + suffix
}

func (c *Client) orderPath(orderID, suffix string) string {
	return c.restaurantPath("/orders/" + url.PathEscape(orderID) + suffix)
}

func (c *Client) ListOrders(ctx context.Context) ([]*orders.Order, error) {
	var out []*orders.Order
	if err := c.do(ctx, http.MethodGet, c.restaurantPath("/orders"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var out orders.Order
	if err := c.do(ctx, http.MethodGet, c.orderPath(orderID, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CreateOrderRequest struct {
	OrderType       orders.Type          `json:"order_type"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
	Items           []orders.ItemRequest `json:"items"`
	CustomerName    string               `json:"customer_name"`
	CustomerPhone   string               `json:"customer_phone"`
	TableNumber     *string              `json:"table_number,omitempty"`
	CustomerAddress *string              `json:"customer_address,omitempty"`
	CustomerNote    *string              `json:"customer_note,omitempty"`
}

type CreateOrderResult struct {
	Order    *orders.Order     `json:"order"`
	Checkout *payment.Checkout `json:"checkout,omitempty"`
}

// CreateOrder places an order from the desk. The same idempotency key always yields the same order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*CreateOrderResult, error) {
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	var out CreateOrderResult
	if err := c.do(ctx, http.MethodPost, c.restaurantPath("/orders"), req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdvanceStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	var out orders.Order
	body := map[string]orders.Status{"status": to}
	if err := c.do(ctx, http.MethodPost, c.orderPath(orderID, "/status"), body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmCashPayment(ctx context.Context, orderID string) (*orders.Order, error) {
	var out orders.Order
	if err := c.do(ctx, http.MethodPost, c.orderPath(orderID, "/payment/confirm-cash"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoice returns the printable HTML rendered by the server.
func (c *Client) Invoice(ctx context.Context, orderID string) (string, error) {
	var out bytes.Buffer
	if err := c.do(ctx, http.MethodGet, c.orderPath(orderID, "/invoice"), nil, nil, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (c *Client) ListWaiterCalls(ctx context.Context) ([]*waitercalls.Call, error) {
	var out []*waitercalls.Call
	if err := c.do(ctx, http.MethodGet, c.restaurantPath("/waiter-calls"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AcknowledgeWaiterCall(ctx context.Context, id string) (*waitercalls.Call, error) {
	var out waitercalls.Call
	if err := c.do(ctx, http.MethodPost, c.restaurantPath("/waiter-calls/"+url.PathEscape(id)+"/ack"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteWaiterCall(ctx context.Context, id string) (*waitercalls.Call, error) {
	var out waitercalls.Call
	if err := c.do(ctx, http.MethodPost, c.restaurantPath("/waiter-calls/"+url.PathEscape(id)+"/complete"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends an authenticated request. A 401 drops the token and retries once with a fresh login.
func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		err = c.send(req, out)
		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.dropToken(token)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return nil
	}
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err = io.Copy(v, resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}
