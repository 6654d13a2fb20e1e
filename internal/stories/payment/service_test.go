package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/stories/orders"
)

type memStorage struct {
	nextID   int64
	payments map[int64]*Payment
}

func newMemStorage() *memStorage {
	return &memStorage{payments: map[int64]*Payment{}}
}

func (m *memStorage) CreatePayment(_ context.Context, p Payment) (*Payment, error) {
	m.nextID++
	p.ID = m.nextID
	m.payments[p.ID] = &p
	c := p
	return &c, nil
}

func (m *memStorage) find(c GetCriteria) *Payment {
	for _, p := range m.payments {
		switch {
		case c.ID != nil && p.ID == *c.ID,
			c.OrderID != nil && p.OrderID == *c.OrderID,
			c.YooKassaID != nil && p.YooKassaID != nil && *p.YooKassaID == *c.YooKassaID:
			return p
		}
	}
	return nil
}

func (m *memStorage) GetPayment(_ context.Context, c GetCriteria) (*Payment, error) {
	p := m.find(c)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStorage) UpdatePayment(_ context.Context, c GetCriteria, params UpdateParams) (*Payment, error) {
	p := m.find(c)
	if p == nil {
		return nil, nil
	}
	if params.Status != nil {
		p.Status = *params.Status
	}
	if params.YooKassaID != nil {
		p.YooKassaID = params.YooKassaID
	}
	if params.PaymentURL != nil {
		p.PaymentURL = params.PaymentURL
	}
	if params.ProcessedAt != nil {
		p.ProcessedAt = params.ProcessedAt
	}
	if params.IncrementCheck {
		p.Checks++
	}
	cp := *p
	return &cp, nil
}

func (m *memStorage) ListPayments(_ context.Context, c ListCriteria) ([]*Payment, error) {
	var out []*Payment
	for _, p := range m.payments {
		if c.MaxChecks != nil && p.Checks >= *c.MaxChecks {
			continue
		}
		for _, s := range c.Statuses {
			if p.Status == s {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

type mockGateway struct {
	status    yoopayment.Status
	statusErr error
	keys      []string
}

func (m *mockGateway) CreatePayment(_ context.Context, _ float64, _ string, _ map[string]string, key string) (*yoopayment.Payment, error) {
	m.keys = append(m.keys, key)
	return &yoopayment.Payment{
		ID:           "yk-1",
		Status:       yoopayment.Pending,
		Confirmation: &yoopayment.Redirect{ConfirmationURL: "https://pay.example/yk-1"},
	}, nil
}

func (m *mockGateway) GetPaymentStatus(_ context.Context, _ string) (*yoopayment.Payment, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &yoopayment.Payment{ID: "yk-1", Status: m.status}, nil
}

type orderCall struct {
	orderID string
	to      orders.PaymentStatus
}

type mockOrders struct {
	calls []orderCall
	err   error
}

func (m *mockOrders) SetPaymentStatus(_ context.Context, _, orderID string, to orders.PaymentStatus, _ *orders.PaymentMethod, _ string) (*orders.Order, error) {
	m.calls = append(m.calls, orderCall{orderID: orderID, to: to})
	if m.err != nil {
		return nil, m.err
	}
	return &orders.Order{ID: orderID, PaymentStatus: to}, nil
}

func onlineOrder() *orders.Order {
	return &orders.Order{
		ID:            "o1",
		RestaurantID:  "r1",
		UniqueOrderID: "ABC123",
		PaymentMethod: orders.PaymentMethodOnline,
		PaymentStatus: orders.PaymentPending,
		TotalAmount:   357,
	}
}

func newTestService(mock bool) (*Service, *memStorage, *mockGateway, *mockOrders) {
	store := newMemStorage()
	gw := &mockGateway{status: yoopayment.Pending}
	ord := &mockOrders{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, gw, ord, mock, logger), store, gw, ord
}

func TestStartCheckout(t *testing.T) {
	svc, _, gw, _ := newTestService(false)

	checkout, err := svc.StartCheckout(context.Background(), onlineOrder())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/yk-1", checkout.CheckoutURL)
	assert.Equal(t, StatusPending, checkout.Status)
	assert.Equal(t, []string{"o1"}, gw.keys)

	again, err := svc.StartCheckout(context.Background(), onlineOrder())
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentID, again.PaymentID)
	assert.Len(t, gw.keys, 1, "second checkout must reuse the existing payment")
}

func TestStartCheckoutRejectsCash(t *testing.T) {
	svc, _, _, _ := newTestService(false)
	o := onlineOrder()
	o.PaymentMethod = orders.PaymentMethodCash

	_, err := svc.StartCheckout(context.Background(), o)
	assert.Error(t, err)
}

func TestCheckPaymentStatusPropagates(t *testing.T) {
	svc, _, gw, ord := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	gw.status = yoopayment.WaitingForCapture
	p, err := svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerifying, p.Status)

	gw.status = yoopayment.Succeeded
	p, err = svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.NotNil(t, p.ProcessedAt)
	assert.Equal(t, 2, p.Checks)

	assert.Equal(t, []orderCall{
		{orderID: "o1", to: orders.PaymentVerifying},
		{orderID: "o1", to: orders.PaymentCompleted},
	}, ord.calls)
}

func TestCheckPaymentStatusOrderSettledInCash(t *testing.T) {
	svc, store, gw, ord := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	ord.err = fmt.Errorf("%w: paid cash, cannot switch to online", orders.ErrInvalidPaymentChange)
	gw.status = yoopayment.Succeeded
	p, err := svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, StatusCompleted, store.payments[checkout.PaymentID].Status)
	assert.Len(t, ord.calls, 1)
}

func TestCheckPaymentStatusPropagateError(t *testing.T) {
	svc, _, gw, ord := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	ord.err = errors.New("db is gone")
	gw.status = yoopayment.Succeeded
	_, err = svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	assert.Error(t, err)
}

func TestCheckPaymentStatusUnchanged(t *testing.T) {
	svc, _, _, ord := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	p, err := svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, 1, p.Checks)
	assert.Empty(t, ord.calls)
}

func TestCheckPaymentStatusGatewayErrorCountsCheck(t *testing.T) {
	svc, store, gw, _ := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	gw.statusErr = errors.New("gateway down")
	_, err = svc.CheckPaymentStatus(ctx, checkout.PaymentID)
	assert.Error(t, err)
	assert.Equal(t, 1, store.payments[checkout.PaymentID].Checks)
}

func TestHandleNotification(t *testing.T) {
	svc, _, gw, ord := newTestService(false)
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	gw.status = yoopayment.Canceled
	p, err := svc.HandleNotification(ctx, "yk-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, p.Status)
	require.Len(t, ord.calls, 1)
	assert.Equal(t, orders.PaymentFailed, ord.calls[0].to)

	unknown, err := svc.HandleNotification(ctx, "yk-unknown")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMockCheckout(t *testing.T) {
	svc, _, gw, ord := newTestService(true)

	checkout, err := svc.StartCheckout(context.Background(), onlineOrder())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, checkout.Status)
	assert.Empty(t, gw.keys)
	require.Len(t, ord.calls, 1)
	assert.Equal(t, orders.PaymentCompleted, ord.calls[0].to)
}

func TestListAwaitingHonoursMaxChecks(t *testing.T) {
	svc, store, _, _ := newTestService(false)
	ctx := context.Background()

	checkout, err := svc.StartCheckout(ctx, onlineOrder())
	require.NoError(t, err)

	list, err := svc.ListAwaiting(ctx, 60)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	store.payments[checkout.PaymentID].Checks = 60
	list, err = svc.ListAwaiting(ctx, 60)
	require.NoError(t, err)
	assert.Empty(t, list)
}
