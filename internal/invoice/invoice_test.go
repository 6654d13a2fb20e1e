package invoice

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinedesk/internal/stories/orders"
)

func twoItemOrder(method orders.PaymentMethod) *orders.Order {
	return &orders.Order{
		UniqueOrderID: "K7P2QX",
		PaymentMethod: method,
		PaymentStatus: orders.PaymentCompleted,
		OrderType:     orders.TypeDineIn,
		Items: []orders.Item{
			{DishID: "d1", Name: "Paneer Tikka", UnitPrice: 200, Quantity: 1, LineTotal: 200},
			{DishID: "d2", Name: "Veg Biryani", UnitPrice: 150, Quantity: 1, LineTotal: 150},
		},
		CustomerName: "Asha",
		TableNumber:  lo.ToPtr("12"),
		CreatedAt:    time.Date(2026, 5, 1, 19, 45, 0, 0, time.UTC),
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		method orders.PaymentMethod
		want   Totals
	}{
		{name: "online adds two percent", method: orders.PaymentMethodOnline, want: Totals{Subtotal: 350, GatewayCharge: 7, Total: 357}},
		{name: "cash has no charge", method: orders.PaymentMethodCash, want: Totals{Subtotal: 350, GatewayCharge: 0, Total: 350}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(twoItemOrder(tt.method)))
		})
	}
}

func TestComputeIgnoresStoredTotals(t *testing.T) {
	o := twoItemOrder(orders.PaymentMethodCash)
	o.Items[0].Quantity = 3
	o.Items[0].LineTotal = 1
	o.TotalAmount = 1

	assert.Equal(t, 750.0, Compute(o).Total)
}

func TestRenderOnline(t *testing.T) {
	html, err := Render(Input{
		Order:      twoItemOrder(orders.PaymentMethodOnline),
		Restaurant: Restaurant{Name: "Spice Route", Address: "MG Road", CurrencySymbol: "₹"},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Invoice #K7P2QX")
	assert.Contains(t, html, "Spice Route")
	assert.Contains(t, html, "Table 12")
	assert.Contains(t, html, "₹350.00")
	assert.Contains(t, html, "Payment gateway charge (2%)")
	assert.Contains(t, html, "₹7.00")
	assert.Contains(t, html, "₹357.00")
	assert.Contains(t, html, "01 May 2026, 19:45")
}

func TestRenderCashHidesCharge(t *testing.T) {
	html, err := Render(Input{
		Order:      twoItemOrder(orders.PaymentMethodCash),
		Restaurant: Restaurant{Name: "Spice Route", CurrencySymbol: "₹"},
	})
	require.NoError(t, err)

	assert.NotContains(t, html, "Payment gateway charge")
	assert.Contains(t, html, "₹350.00")
}

func TestRenderDeliveryEscapesInput(t *testing.T) {
	o := twoItemOrder(orders.PaymentMethodOnline)
	o.OrderType = orders.TypeOnline
	o.TableNumber = nil
	o.CustomerAddress = lo.ToPtr("12 <b>Lake</b> View")

	html, err := Render(Input{Order: o, Restaurant: Restaurant{Name: "Spice Route", CurrencySymbol: "₹"}})
	require.NoError(t, err)

	assert.Contains(t, html, "Delivery")
	assert.Contains(t, html, "12 &lt;b&gt;Lake&lt;/b&gt; View")
	assert.NotContains(t, html, "Table ")
}

func TestRenderWithoutOrder(t *testing.T) {
	_, err := Render(Input{})
	assert.ErrorIs(t, err, ErrNoOrder)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "₹7.00", Money("₹", 7))
	assert.Equal(t, "$299.97", Money("$", 299.97))
	assert.Equal(t, "0.50", Money("", 0.5))
}
