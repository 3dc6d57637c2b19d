package engine

import "github.com/shopspring/decimal"

// roundBenefit rounds a benefit amount to whole currency units, half
// up. Benefit amounts are never negative at this point, so half away
// from zero is half up.
func roundBenefit(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}

// floorZero clamps negative amounts to zero.
func floorZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// tableLookup returns the amount for a household size from a
// size-keyed table, extending past the largest listed size with the
// per-additional-member increment.
func tableLookup(table map[int]decimal.Decimal, perAdditional decimal.Decimal, size int) (decimal.Decimal, bool) {
	if amt, ok := table[size]; ok {
		return amt, true
	}
	maxSize := 0
	for s := range table {
		if s > maxSize {
			maxSize = s
		}
	}
	if maxSize == 0 || size < maxSize {
		return decimal.Zero, false
	}
	extra := decimal.NewFromInt(int64(size - maxSize))
	return table[maxSize].Add(perAdditional.Mul(extra)), true
}
