package invoice

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"dinedesk/internal/stories/orders"
)

//go:embed templates/*
var templatesFS embed.FS

var tmpl = template.Must(template.ParseFS(templatesFS, "templates/invoice.html"))

var ErrNoOrder = errors.New("invoice requires an order")

// Restaurant is the letterhead printed on the invoice.
type Restaurant struct {
	Name           string
	Address        string
	Phone          string
	CurrencySymbol string
}

type Input struct {
	Order      *orders.Order
	Restaurant Restaurant
}

// Totals are recomputed from the line items, never read from the stored order.
type Totals struct {
	Subtotal      float64
	GatewayCharge float64
	Total         float64
}

// Compute sums unit_price * quantity and adds the gateway charge for orders paid online.
func Compute(o *orders.Order) Totals {
	q := orders.Price(o.Items, o.PaymentMethod)
	return Totals{Subtotal: q.Subtotal, GatewayCharge: q.GatewayCharge, Total: q.Total}
}

type line struct {
	Name      string
	Quantity  int
	UnitPrice string
	Amount    string
}

type document struct {
	Restaurant        Restaurant
	Code              string
	Date              string
	TypeLabel         string
	Table             string
	Address           string
	CustomerName      string
	CustomerPhone     string
	Note              string
	Lines             []line
	Subtotal          string
	GatewayCharge     string
	ShowGatewayCharge bool
	Total             string
	PaymentMethod     string
	PaymentStatus     string
}

// Render returns the printable HTML document for an order.
func Render(in Input) (string, error) {
	if in.Order == nil {
		return "", ErrNoOrder
	}

	o := in.Order
	symbol := in.Restaurant.CurrencySymbol
	totals := Compute(o)

	doc := document{
		Restaurant:        in.Restaurant,
		Code:              o.UniqueOrderID,
		Date:              o.CreatedAt.Format("02 Jan 2006, 15:04"),
		TypeLabel:         "Dine-in",
		CustomerName:      o.CustomerName,
		CustomerPhone:     o.CustomerPhone,
		Subtotal:          Money(symbol, totals.Subtotal),
		GatewayCharge:     Money(symbol, totals.GatewayCharge),
		ShowGatewayCharge: o.PaymentMethod == orders.PaymentMethodOnline,
		Total:             Money(symbol, totals.Total),
		PaymentMethod:     string(o.PaymentMethod),
		PaymentStatus:     strings.ReplaceAll(string(o.PaymentStatus), "_", " "),
	}
	if o.IsOnline() {
		doc.TypeLabel = "Delivery"
		doc.Address = deref(o.CustomerAddress)
	} else {
		doc.Table = deref(o.TableNumber)
	}
	doc.Note = deref(o.CustomerNote)

	for _, it := range o.Items {
		doc.Lines = append(doc.Lines, line{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: Money(symbol, it.UnitPrice),
			Amount:    Money(symbol, orders.LineTotal(it.UnitPrice, it.Quantity)),
		})
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, doc); err != nil {
		return "", fmt.Errorf("execute invoice template: %w", err)
	}
	return b.String(), nil
}

// Money formats an amount with two decimals behind the currency symbol.
func Money(symbol string, v float64) string {
	return symbol + decimal.NewFromFloat(v).StringFixed(2)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
