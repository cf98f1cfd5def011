package tradingutils

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Hundred returns the decimal constant 100
func Hundred() decimal.Decimal {
	return hundred
}

// Percent returns part/whole*100, or zero when whole is zero
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// PercentChange returns (to-from)/from*100, or zero when from is zero
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	return Percent(to.Sub(from), from)
}

// ApplyBuyFee returns amount*(1+fee) for a buy side
func ApplyBuyFee(amount, fee decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(fee))
}

// ApplySellFee returns amount*(1-fee) for a sell side
func ApplySellFee(amount, fee decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(fee))
}

// Average returns the arithmetic mean, or zero for an empty slice
func Average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}

// MinPositive returns the smallest strictly positive value and false if none exists
func MinPositive(values ...decimal.Decimal) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, v := range values {
		if !v.IsPositive() {
			continue
		}
		if !found || v.LessThan(best) {
			best = v
			found = true
		}
	}
	return best, found
}
