package arbitrage

import (
	"fmt"
	"sort"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// PriceOptions carries the inputs of a price spread that are not part of the quotes
type PriceOptions struct {
	// TransferFee is charged on the sell side for moving the asset between venues
	TransferFee decimal.Decimal
	// Rate returns the units of a quote currency per unit of the reporting currency,
	// e.g. KRW per USD. Prices quoted in that currency are divided by it.
	// Nil, or a non-positive result, leaves the price as quoted.
	Rate func(currency string) decimal.Decimal
}

func (o PriceOptions) convert(price decimal.Decimal, currency string) decimal.Decimal {
	if o.Rate == nil {
		return price
	}
	if r := o.Rate(currency); r.IsPositive() {
		return price.Div(r)
	}
	return price
}

// CalculatePriceSpread evaluates buying on one venue and selling on another after fees
func CalculatePriceSpread(buy, sell core.TickerQuote, buyFee, sellFee core.ExchangeFeeProfile, opts PriceOptions) (core.SpreadResult, error) {
	buyPrice := buy.BuyPrice()
	sellPrice := sell.SellPrice()
	if !buyPrice.IsPositive() || !sellPrice.IsPositive() {
		return core.SpreadResult{}, fmt.Errorf("%w: %s %s->%s has no usable price",
			apperrors.ErrDataUnavailable, buy.Symbol, buy.Exchange, sell.Exchange)
	}

	buyPrice = opts.convert(buyPrice, buy.Currency)
	sellPrice = opts.convert(sellPrice, sell.Currency)

	buyCost := tradingutils.ApplyBuyFee(buyPrice, buyFee.TakerFee)
	sellRevenue := tradingutils.ApplySellFee(tradingutils.ApplySellFee(sellPrice, sellFee.TakerFee), opts.TransferFee)
	profitAmount := sellRevenue.Sub(buyCost)
	profitPercent := tradingutils.Percent(profitAmount, buyCost)

	ts := buy.Timestamp
	if sell.Timestamp.After(ts) {
		ts = sell.Timestamp
	}

	return core.SpreadResult{
		Symbol:           buy.Symbol,
		BuyExchange:      buy.Exchange,
		SellExchange:     sell.Exchange,
		BuyPrice:         buyPrice,
		SellPrice:        sellPrice,
		BuyCost:          buyCost,
		SellRevenue:      sellRevenue,
		PriceDifference:  sellPrice.Sub(buyPrice),
		RawSpreadPercent: tradingutils.PercentChange(buyPrice, sellPrice),
		ProfitPercent:    profitPercent,
		ProfitAmount:     profitAmount,
		IsProfitable:     profitPercent.IsPositive(),
		Timestamp:        ts,
	}, nil
}

// ScanPriceSpreads evaluates both directions of every venue pair quoting the symbol.
// Results are sorted by profit percent descending, then buy and sell exchange.
func ScanPriceSpreads(symbol string, quotes map[string]core.TickerQuote, fees *FeeTable, opts PriceOptions) []core.SpreadResult {
	exchanges := make([]string, 0, len(quotes))
	for name := range quotes {
		exchanges = append(exchanges, name)
	}
	sort.Strings(exchanges)

	results := make([]core.SpreadResult, 0, len(exchanges)*(len(exchanges)-1))
	for _, buyEx := range exchanges {
		for _, sellEx := range exchanges {
			if buyEx == sellEx {
				continue
			}
			res, err := CalculatePriceSpread(quotes[buyEx], quotes[sellEx], fees.Profile(buyEx), fees.Profile(sellEx), opts)
			if err != nil {
				continue
			}
			res.Symbol = symbol
			results = append(results, res)
		}
	}

	SortSpreads(results)
	return results
}

// SortSpreads orders spreads by profit percent descending with a stable tie-break
func SortSpreads(results []core.SpreadResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if c := a.ProfitPercent.Cmp(b.ProfitPercent); c != 0 {
			return c > 0
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.BuyExchange != b.BuyExchange {
			return a.BuyExchange < b.BuyExchange
		}
		return a.SellExchange < b.SellExchange
	})
}

// ProfitEstimate sizes a price spread for a given investment
type ProfitEstimate struct {
	Investment     decimal.Decimal `json:"investment"`
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	ProfitPercent  decimal.Decimal `json:"profit_percent"`
}

// ProfitForAmount returns the expected outcome of investing amount in the spread.
// Unprofitable spreads yield zero profit and return the investment unchanged.
func ProfitForAmount(spread core.SpreadResult, amount decimal.Decimal) ProfitEstimate {
	if !spread.IsProfitable {
		return ProfitEstimate{
			Investment:     amount,
			ExpectedProfit: decimal.Zero,
			ExpectedReturn: amount,
			ProfitPercent:  decimal.Zero,
		}
	}

	profit := amount.Mul(spread.ProfitPercent).Div(tradingutils.Hundred())
	return ProfitEstimate{
		Investment:     amount,
		ExpectedProfit: profit,
		ExpectedReturn: amount.Add(profit),
		ProfitPercent:  spread.ProfitPercent,
	}
}
