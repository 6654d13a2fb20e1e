package storage

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/infra/sqlite3"
	"dinedesk/internal/stories/orders"
	"dinedesk/internal/stories/payment"
	"dinedesk/internal/stories/restaurants"
	"dinedesk/internal/stories/waitercalls"
)

func newTestStorage(t *testing.T) *storageImpl {
	t.Helper()

	db, err := sqlite3.New(context.Background(), sqlite3.WithDSN(":memory:"), sqlite3.WithMigrate())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db.DB)
}

func seedRestaurant(t *testing.T, s *storageImpl, id string) {
	t.Helper()

	_, err := s.CreateRestaurant(context.Background(), restaurants.Restaurant{
		ID:             id,
		Name:           "Spice Route",
		CurrencySymbol: "₹",
		GatewayEnabled: true,
		IsActive:       true,
	})
	require.NoError(t, err)
}

func sampleOrder(id, code string) orders.Order {
	return orders.Order{
		ID:            id,
		RestaurantID:  "r1",
		UniqueOrderID: code,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		PaymentMethod: orders.PaymentMethodOnline,
		OrderType:     orders.TypeDineIn,
		Items: []orders.Item{
			{DishID: "d1", Name: "Paneer Tikka", UnitPrice: 200, Quantity: 1, LineTotal: 200},
			{DishID: "d2", Name: "Lassi", UnitPrice: 75, Quantity: 2, LineTotal: 150},
		},
		Subtotal:      350,
		GatewayCharge: 7,
		TotalAmount:   357,
		CustomerName:  "Asha",
		TableNumber:   lo.ToPtr("7"),
	}
}

func TestOrderRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	created, err := s.CreateOrder(ctx, sampleOrder("o1", "ABC234"), lo.ToPtr("key-1"))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "ABC234", created.UniqueOrderID)
	assert.Len(t, created.Items, 2)
	assert.Equal(t, 357.0, created.TotalAmount)
	assert.Equal(t, "7", *created.TableNumber)
	assert.Nil(t, created.CustomerAddress)

	byCode, err := s.GetOrder(ctx, orders.GetCriteria{RestaurantID: "r1", UniqueOrderID: lo.ToPtr("ABC234")})
	require.NoError(t, err)
	assert.Equal(t, "o1", byCode.ID)

	byKey, err := s.GetOrder(ctx, orders.GetCriteria{RestaurantID: "r1", IdempotencyKey: lo.ToPtr("key-1")})
	require.NoError(t, err)
	assert.Equal(t, "o1", byKey.ID)

	otherTenant, err := s.GetOrder(ctx, orders.GetCriteria{RestaurantID: "r2", ID: lo.ToPtr("o1")})
	require.NoError(t, err)
	assert.Nil(t, otherTenant)
}

func TestCreateOrderUniqueViolations(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	_, err := s.CreateOrder(ctx, sampleOrder("o1", "ABC234"), lo.ToPtr("key-1"))
	require.NoError(t, err)

	_, err = s.CreateOrder(ctx, sampleOrder("o2", "ABC234"), nil)
	assert.ErrorIs(t, err, orders.ErrDuplicateCode)

	_, err = s.CreateOrder(ctx, sampleOrder("o3", "XYZ789"), lo.ToPtr("key-1"))
	assert.ErrorIs(t, err, orders.ErrDuplicateIdempotencyKey)

	_, err = s.CreateOrder(ctx, sampleOrder("o4", "QWE456"), nil)
	assert.NoError(t, err, "missing idempotency keys never collide")
}

func TestGuardedUpdateOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	_, err := s.CreateOrder(ctx, sampleOrder("o1", "ABC234"), nil)
	require.NoError(t, err)

	criteria := orders.GetCriteria{RestaurantID: "r1", ID: lo.ToPtr("o1")}
	pending, inProgress, completed := orders.StatusPending, orders.StatusInProgress, orders.StatusCompleted

	updated, err := s.UpdateOrder(ctx, criteria, orders.UpdateParams{ExpectStatus: &pending, Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, updated.Status)

	stale, err := s.UpdateOrder(ctx, criteria, orders.UpdateParams{ExpectStatus: &pending, Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusInProgress, stale.Status, "stale expectation must not write")

	paid, cash := orders.PaymentCompleted, orders.PaymentMethodCash
	updated, err = s.UpdateOrder(ctx, criteria, orders.UpdateParams{
		PaymentStatus: &paid,
		PaymentMethod: &cash,
		Pricing:       &orders.Quote{Subtotal: 350, GatewayCharge: 0, Total: 350},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentCompleted, updated.PaymentStatus)
	assert.Equal(t, orders.PaymentMethodCash, updated.PaymentMethod)
	assert.Equal(t, 350.0, updated.Subtotal)
	assert.Equal(t, 0.0, updated.GatewayCharge)
	assert.Equal(t, 350.0, updated.TotalAmount)
}

func TestListAndDeleteOrders(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, code := range []string{"AAA222", "BBB333", "CCC444"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		_, err := s.CreateOrder(ctx, sampleOrder("o"+code, code), nil)
		require.NoError(t, err)
	}

	list, err := s.ListOrders(ctx, orders.ListCriteria{RestaurantID: "r1"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "CCC444", list[0].UniqueOrderID, "newest first")

	_, err = s.CreatePayment(ctx, payment.Payment{OrderID: "oAAA222", RestaurantID: "r1", Amount: 357, Status: payment.StatusPending})
	require.NoError(t, err)

	require.NoError(t, s.DeleteOrder(ctx, orders.GetCriteria{RestaurantID: "r1", ID: lo.ToPtr("oAAA222")}))

	list, err = s.ListOrders(ctx, orders.ListCriteria{RestaurantID: "r1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	p, err := s.GetPayment(ctx, payment.GetCriteria{OrderID: lo.ToPtr("oAAA222")})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPaymentChecks(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	created, err := s.CreatePayment(ctx, payment.Payment{OrderID: "o1", RestaurantID: "r1", Amount: 357, Status: payment.StatusPending})
	require.NoError(t, err)

	criteria := payment.GetCriteria{ID: &created.ID}
	for i := 0; i < 3; i++ {
		_, err = s.UpdatePayment(ctx, criteria, payment.UpdateParams{IncrementCheck: true})
		require.NoError(t, err)
	}

	updated, err := s.UpdatePayment(ctx, criteria, payment.UpdateParams{YooKassaID: lo.ToPtr("yk-1")})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Checks)
	assert.Equal(t, "yk-1", *updated.YooKassaID)

	byGateway, err := s.GetPayment(ctx, payment.GetCriteria{YooKassaID: lo.ToPtr("yk-1")})
	require.NoError(t, err)
	assert.Equal(t, created.ID, byGateway.ID)

	awaiting, err := s.ListPayments(ctx, payment.ListCriteria{Statuses: []payment.Status{payment.StatusPending}, MaxChecks: lo.ToPtr(3)})
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	awaiting, err = s.ListPayments(ctx, payment.ListCriteria{Statuses: []payment.Status{payment.StatusPending}, MaxChecks: lo.ToPtr(60)})
	require.NoError(t, err)
	assert.Len(t, awaiting, 1)
}

func TestRestaurantsDishesCredentials(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	_, err := s.UpdateRestaurant(ctx, "r1", restaurants.UpdateParams{WebhookURL: lo.ToPtr("https://pos.example/hook"), WebhookSecret: lo.ToPtr("s3cret")})
	require.NoError(t, err)
	r, err := s.UpdateRestaurant(ctx, "r1", restaurants.UpdateParams{WebhookURL: lo.ToPtr("")})
	require.NoError(t, err)
	assert.Nil(t, r.WebhookURL)
	assert.Equal(t, "s3cret", *r.WebhookSecret)

	_, err = s.UpsertDish(ctx, restaurants.Dish{ID: "d1", RestaurantID: "r1", Name: "Dosa", Price: 120, IsAvailable: true})
	require.NoError(t, err)
	_, err = s.UpsertDish(ctx, restaurants.Dish{ID: "d2", RestaurantID: "r1", Name: "Idli", Price: 60, IsAvailable: false})
	require.NoError(t, err)
	dish, err := s.UpsertDish(ctx, restaurants.Dish{ID: "d1", RestaurantID: "r1", Name: "Masala Dosa", Price: 140, IsAvailable: true})
	require.NoError(t, err)
	assert.Equal(t, "Masala Dosa", dish.Name)

	available, err := s.ListDishes(ctx, "r1", true)
	require.NoError(t, err)
	assert.Len(t, available, 1)

	byIDs, err := s.ListDishesByIDs(ctx, "r1", []string{"d1", "d2", "missing"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	summary, err := s.GetRestaurantSummary(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, summary.GatewayEnabled)

	_, err = s.CreateCredential(ctx, restaurants.Credential{RestaurantID: "r1", Username: "spice-abc123", PasswordHash: "hash"})
	require.NoError(t, err)
	cred, err := s.GetCredentialByUsername(ctx, "spice-abc123")
	require.NoError(t, err)
	assert.Equal(t, "r1", cred.RestaurantID)

	require.NoError(t, s.DeleteRestaurant(ctx, "r1"))
	gone, err := s.GetRestaurant(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	cred, err = s.GetCredentialByUsername(ctx, "spice-abc123")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestWaiterCalls(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	seedRestaurant(t, s, "r1")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.CreateWaiterCall(ctx, waitercalls.Call{ID: "c1", RestaurantID: "r1", TableNumber: "4", Status: waitercalls.StatusOpen, CreatedAt: now.Add(-time.Hour), UpdatedAt: now})
	require.NoError(t, err)
	_, err = s.CreateWaiterCall(ctx, waitercalls.Call{ID: "c2", RestaurantID: "r1", TableNumber: "5", Status: waitercalls.StatusOpen, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	before := now.Add(-30 * time.Minute)
	stale, err := s.ListWaiterCalls(ctx, waitercalls.ListCriteria{Statuses: []waitercalls.Status{waitercalls.StatusOpen}, CreatedBefore: &before})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "c1", stale[0].ID)

	criteria := waitercalls.GetCriteria{RestaurantID: "r1", ID: "c1"}
	call, err := s.UpdateWaiterCallStatus(ctx, criteria, waitercalls.StatusOpen, waitercalls.StatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, waitercalls.StatusAcknowledged, call.Status)

	call, err = s.UpdateWaiterCallStatus(ctx, criteria, waitercalls.StatusOpen, waitercalls.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, waitercalls.StatusAcknowledged, call.Status, "guarded by the expected status")
}
