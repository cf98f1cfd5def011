package arbitrage

import (
	"sort"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// CalculatePremium compares a KRW venue's price with a USD venue converted at rate.
// ok is false when either price or the rate is missing.
func CalculatePremium(local, reference core.TickerQuote, rate decimal.Decimal) (core.PremiumQuote, bool) {
	if !local.Last.IsPositive() || !reference.Last.IsPositive() || !rate.IsPositive() {
		return core.PremiumQuote{}, false
	}

	converted := reference.Last.Mul(rate)
	return core.PremiumQuote{
		Symbol:            local.Symbol,
		LocalExchange:     local.Exchange,
		ReferenceExchange: reference.Exchange,
		LocalPrice:        local.Last,
		ReferencePrice:    reference.Last,
		ConversionRate:    rate,
		PremiumPercent:    tradingutils.PercentChange(converted, local.Last),
	}, true
}

// ApplyPurePremium sets each quote's pure premium to its premium minus the average
// and returns the average. The input slice is modified in place and sorted by symbol.
func ApplyPurePremium(quotes []core.PremiumQuote) decimal.Decimal {
	if len(quotes) == 0 {
		return decimal.Zero
	}

	values := make([]decimal.Decimal, len(quotes))
	for i, q := range quotes {
		values[i] = q.PremiumPercent
	}
	avg := tradingutils.Average(values)

	for i := range quotes {
		quotes[i].PurePremiumPercent = quotes[i].PremiumPercent.Sub(avg)
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].Symbol != quotes[j].Symbol {
			return quotes[i].Symbol < quotes[j].Symbol
		}
		return quotes[i].LocalExchange < quotes[j].LocalExchange
	})
	return avg
}
