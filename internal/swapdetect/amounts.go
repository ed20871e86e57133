package swapdetect

import "github.com/shopspring/decimal"

// absInt64ToDecimal converts a signed base-unit delta to its absolute value
// as a decimal.Decimal: swap amounts never pass through a float on their
// way to the wire.
func absInt64ToDecimal(v int64) decimal.Decimal {
	if v < 0 {
		v = -v
	}
	return decimal.NewFromInt(v)
}
