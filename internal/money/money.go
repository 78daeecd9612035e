// Package money fixes the precision and rounding rules used by every
// monetary computation in the engine. Currency amounts carry two fractional
// digits, rates carry four, and every stored or returned value is rounded
// half-up (away from zero at the midpoint), never truncated.
package money

import (
	"github.com/shopspring/decimal"
)

const (
	// CurrencyPlaces is penny precision for dollar amounts.
	CurrencyPlaces int32 = 2
	// RatePlaces is the precision for percentages and rates stored as
	// fractions in [0,1].
	RatePlaces int32 = 4
)

// Cent is the smallest representable currency unit, also used as the
// reconciliation tolerance.
var Cent = decimal.New(1, -CurrencyPlaces)

// Round rounds a currency amount to penny precision, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// RoundRate rounds a rate or percentage fraction.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RatePlaces)
}

// IsFraction reports whether d is a valid sharing fraction in [0,1].
func IsFraction(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

// WithinTolerance reports whether two amounts agree to within one cent.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Cent)
}
