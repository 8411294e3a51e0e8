// Package pricing turns order lines into a cost breakdown. It is pure so
// the cart preview and the server compute the exact same figures.
package pricing

import (
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/shopspring/decimal"
)

var (
	// DefaultDeliveryFee is charged once per order regardless of distance.
	DefaultDeliveryFee = decimal.RequireFromString("2.99")

	// DefaultTaxRate applies to the subtotal only, never to the delivery fee.
	DefaultTaxRate = decimal.RequireFromString("0.08")
)

// Summary is the price breakdown of an order.
type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Policy holds the flat delivery fee and tax rate.
type Policy struct {
	DeliveryFee decimal.Decimal
	TaxRate     decimal.Decimal
}

// DefaultPolicy is the flat-rate policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{DeliveryFee: DefaultDeliveryFee, TaxRate: DefaultTaxRate}
}

// ComputeSummary prices lines under the default policy.
func ComputeSummary(lines []order.OrderLine) Summary {
	return DefaultPolicy().Compute(lines)
}

// Compute prices lines. Tax is rounded half away from zero to cents.
func (p Policy) Compute(lines []order.OrderLine) Summary {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	subtotal = subtotal.Round(2)
	fee := p.DeliveryFee.Round(2)
	tax := subtotal.Mul(p.TaxRate).Round(2)

	return Summary{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Tax:         tax,
		Total:       subtotal.Add(fee).Add(tax),
	}
}

// Apply copies the breakdown onto o.
func (s Summary) Apply(o *order.Order) {
	o.Subtotal = s.Subtotal
	o.DeliveryFee = s.DeliveryFee
	o.Tax = s.Tax
	o.GrandTotal = s.Total
}

// Matches reports whether o carries exactly this breakdown.
func (s Summary) Matches(o *order.Order) bool {
	return s.Subtotal.Equal(o.Subtotal) &&
		s.DeliveryFee.Equal(o.DeliveryFee) &&
		s.Tax.Equal(o.Tax) &&
		s.Total.Equal(o.GrandTotal)
}
