// Package pricing computes order totals.
//
// All amounts are integer minor units. Tax is charged on items plus shipping
// and rounded half away from zero to a whole unit.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInvalidTaxRate  = errors.New("tax rate must be between 0 and 1")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

type Line struct {
	UnitPrice int64
	Quantity  int64
}

type Totals struct {
	Subtotal     int64
	ShippingCost int64
	TaxAmount    int64
	Total        int64
}

func Compute(lines []Line, shippingCost int64, taxRate decimal.Decimal) (Totals, error) {
	if shippingCost < 0 {
		return Totals{}, ErrNegativeAmount
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return Totals{}, ErrInvalidTaxRate
	}

	var subtotal int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Totals{}, ErrInvalidQuantity
		}
		if l.UnitPrice < 0 {
			return Totals{}, ErrNegativeAmount
		}
		subtotal += l.UnitPrice * l.Quantity
	}

	tax := Tax(subtotal+shippingCost, taxRate)

	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		TaxAmount:    tax,
		Total:        subtotal + shippingCost + tax,
	}, nil
}

// round(rate * base)
func Tax(base int64, rate decimal.Decimal) int64 {
	return rate.Mul(decimal.NewFromInt(base)).Round(0).IntPart()
}
