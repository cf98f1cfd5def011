package arbitrage

import "github.com/shopspring/decimal"

var hoursPerYear = decimal.NewFromInt(365 * 24)

// ComputeSpread returns the funding spread (short - long).
// Both rates must be expressed over the same period.
func ComputeSpread(longRate, shortRate decimal.Decimal) decimal.Decimal {
	return shortRate.Sub(longRate)
}

// AnnualizeSpread converts a per-interval spread to a yearly fraction using the interval duration (hours).
// If intervalHours is zero or negative, returns zero to avoid division by zero.
func AnnualizeSpread(spread decimal.Decimal, intervalHours decimal.Decimal) decimal.Decimal {
	if intervalHours.Sign() <= 0 {
		return decimal.Zero
	}
	return spread.Mul(hoursPerYear.Div(intervalHours))
}

// HourlyAPR converts an hourly spread to an APR in percent
func HourlyAPR(spreadHourly decimal.Decimal) decimal.Decimal {
	return AnnualizeSpread(spreadHourly, decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
}
