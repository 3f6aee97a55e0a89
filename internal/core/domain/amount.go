package domain

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits persisted for prices, quantities and totals.
const AmountScale = 6

// maxAmount is the exclusive bound of a DECIMAL(20,6) column.
var maxAmount = decimal.New(1, 20-AmountScale)

// RoundAmount rounds d to the persisted scale.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// AmountFits reports whether d is representable in a persisted amount column.
func AmountFits(d decimal.Decimal) bool {
	return d.Abs().LessThan(maxAmount)
}
