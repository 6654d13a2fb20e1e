package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/infra/realtime"
	"dinedesk/internal/stories/orders"
)

type fakeServer struct {
	logins   atomic.Int32
	tokenGen atomic.Int32
	valid    atomic.Value
	lastKey  atomic.Value
	mux      *http.ServeMux
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{mux: http.NewServeMux()}
	f.valid.Store("")

	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid credentials"}`)
			return
		}
		f.logins.Add(1)
		token := "t" + string(rune('0'+f.tokenGen.Add(1)))
		f.valid.Store(token)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token, "restaurant_id": "r1"})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+f.valid.Load().(string) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"invalid token"}`)
				return
			}
			next(w, r)
		}
	}

	f.mux.HandleFunc("GET /api/restaurants/r1/orders", authed(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]*orders.Order{{ID: "o2"}, {ID: "o1"}})
	}))
	f.mux.HandleFunc("POST /api/restaurants/r1/orders", authed(func(w http.ResponseWriter, r *http.Request) {
		f.lastKey.Store(r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"order":{"id":"o3","payment_status":"pending"},"checkout":{"payment_id":4,"order_id":"o3","checkout_url":"https://pay.example/4","status":"pending"}}`)
	}))
	f.mux.HandleFunc("POST /api/restaurants/r1/orders/o1/status", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"payment is not completed"}`)
	}))
	f.mux.HandleFunc("GET /api/restaurants/r1/orders/o1/invoice", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>Invoice #K7P2QX</html>")
	}))

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(url, password string) *Client {
	return NewClient(url, Credentials{RestaurantID: "r1", Username: "spice-route-abc123", Password: password},
		http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClientLogsInOnce(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "pw")

	list, err := c.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o2", list[0].ID)

	_, err = c.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "pw")

	_, err := c.ListOrders(context.Background())
	require.NoError(t, err)

	f.valid.Store("rotated")
	c.mu.Lock()
	c.token = "stale"
	c.mu.Unlock()

	// The stale token is rejected once, the client logs in again and retries.
	_, err = c.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestClientAPIError(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "pw")

	_, err := c.AdvanceStatus(context.Background(), "o1", orders.StatusInProgress)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "payment is not completed", apiErr.Message)
}

func TestClientBadCredentials(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "nope")

	_, err := c.ListOrders(context.Background())
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClientCreateOrderSendsIdempotencyKey(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "pw")

	res, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		PaymentMethod: orders.PaymentMethodOnline,
		Items:         []orders.ItemRequest{{DishID: "d1", Quantity: 1}},
	}, "desk-key-1")
	require.NoError(t, err)

	assert.Equal(t, "desk-key-1", f.lastKey.Load())
	assert.Equal(t, "o3", res.Order.ID)
	require.NotNil(t, res.Checkout)
	assert.Equal(t, "https://pay.example/4", res.Checkout.CheckoutURL)
}

func TestClientInvoice(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newTestClient(srv.URL, "pw")

	html, err := c.Invoice(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "<html>Invoice #K7P2QX</html>", html)
}

func TestFeedURL(t *testing.T) {
	c := newTestClient("https://api.dinedesk.example/", "pw")
	assert.Equal(t, "wss://api.dinedesk.example/api/restaurants/r1/feed/waiter-calls", c.FeedURL(realtime.ChannelWaiterCalls))

	c = newTestClient("http://127.0.0.1:8080", "pw")
	assert.Equal(t, "ws://127.0.0.1:8080/api/restaurants/r1/feed/orders", c.FeedURL(realtime.ChannelOrders))
}
