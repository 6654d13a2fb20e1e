package orders

import "github.com/shopspring/decimal"

// GatewayChargeRate is the surcharge applied to orders paid online.
var GatewayChargeRate = decimal.NewFromFloat(0.02)

type Quote struct {
	Subtotal      float64
	GatewayCharge float64
	Total         float64
}

// LineTotal returns unitPrice * quantity rounded to cents.
func LineTotal(unitPrice float64, quantity int) float64 {
	return decimal.NewFromFloat(unitPrice).
		Mul(decimal.NewFromInt(int64(quantity))).
		Round(2).
		InexactFloat64()
}

// Price sums the line totals and adds the gateway charge for online payment.
func Price(items []Item, method PaymentMethod) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)

	charge := decimal.Zero
	if method == PaymentMethodOnline {
		charge = subtotal.Mul(GatewayChargeRate).Round(2)
	}

	return Quote{
		Subtotal:      subtotal.InexactFloat64(),
		GatewayCharge: charge.InexactFloat64(),
		Total:         subtotal.Add(charge).InexactFloat64(),
	}
}
