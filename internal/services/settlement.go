package services

import "github.com/shopspring/decimal"

// Savings math goes through decimal and rounds to cents; persisted amounts
// stay float64 like every other money field in the store.

// FixedPriceSavings is originalPrice − discountedPrice.
func FixedPriceSavings(originalPrice, discountedPrice float64) float64 {
	savings := decimal.NewFromFloat(originalPrice).Sub(decimal.NewFromFloat(discountedPrice))
	if savings.IsNegative() {
		return 0
	}
	return savings.Round(2).InexactFloat64()
}

// PercentageSavings is billAmount × discountPercentage / 100.
func PercentageSavings(billAmount, discountPercentage float64) float64 {
	savings := decimal.NewFromFloat(billAmount).
		Mul(decimal.NewFromFloat(discountPercentage)).
		Div(decimal.NewFromInt(100))
	return savings.Round(2).InexactFloat64()
}

// SavingsDelta is the net ledger adjustment when a settlement is applied
// or corrected: the previous application is backed out, never added again.
func SavingsDelta(newSavings float64, previousSavings *float64) float64 {
	next := decimal.NewFromFloat(newSavings)
	if previousSavings != nil {
		next = next.Sub(decimal.NewFromFloat(*previousSavings))
	}
	return next.Round(2).InexactFloat64()
}
