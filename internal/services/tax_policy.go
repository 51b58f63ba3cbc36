package services

import "github.com/shopspring/decimal"

// FlatTaxPolicy charges Rate (a fraction, 0.18 for 18%) on the subtotal, rounded to two places.
// The zero value charges no tax.
type FlatTaxPolicy struct {
	Rate decimal.Decimal
}

var _ TaxPolicy = FlatTaxPolicy{}

func (p FlatTaxPolicy) Tax(subtotal decimal.Decimal) decimal.Decimal {
	if p.Rate.IsZero() || !subtotal.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(p.Rate).Round(2)
}
