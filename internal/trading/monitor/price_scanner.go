package monitor

import (
	"context"
	"sort"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"

	"github.com/shopspring/decimal"
)

// ConversionRate supplies the USD/KRW rate used to compare KRW venues
type ConversionRate interface {
	Rate() decimal.Decimal
}

// PriceScannerConfig holds the price scanner's tunables
type PriceScannerConfig struct {
	Symbols          []string
	TransferFee      decimal.Decimal
	PremiumReference string // USD venue KRW prices are compared against
}

// PriceScanner collects tickers and computes price spreads and KRW premiums
type PriceScanner struct {
	collector *Collector
	cfg       PriceScannerConfig
	fees      *arbitrage.FeeTable
	fx        ConversionRate
	logger    core.ILogger
}

// NewPriceScanner creates a price scanner. fx may be nil when no KRW venue is active.
func NewPriceScanner(collector *Collector, cfg PriceScannerConfig, fees *arbitrage.FeeTable, fx ConversionRate, logger core.ILogger) *PriceScanner {
	return &PriceScanner{
		collector: collector,
		cfg:       cfg,
		fees:      fees,
		fx:        fx,
		logger:    logger.WithField("component", "price_scanner"),
	}
}

// Kind implements Scanner
func (s *PriceScanner) Kind() string {
	return core.SnapshotPrice
}

// Scan implements Scanner
func (s *PriceScanner) Scan(ctx context.Context) (*core.Snapshot, error) {
	col, err := s.collector.CollectTickers(ctx, s.cfg.Symbols)
	if err != nil {
		return nil, err
	}

	rate := decimal.Zero
	if s.fx != nil {
		rate = s.fx.Rate()
	}

	opts := arbitrage.PriceOptions{
		TransferFee: s.cfg.TransferFee,
		Rate: func(currency string) decimal.Decimal {
			if currency == core.CurrencyKRW {
				return rate
			}
			return decimal.Zero
		},
	}

	symbols := make([]string, 0, len(col.Records))
	for sym := range col.Records {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	spreads := make([]core.SpreadResult, 0)
	premiums := make([]core.PremiumQuote, 0)

	for _, sym := range symbols {
		quotes := col.Records[sym]

		comparable := quotes
		if !rate.IsPositive() {
			comparable = usdOnly(quotes)
		}
		spreads = append(spreads, arbitrage.ScanPriceSpreads(sym, comparable, s.fees, opts)...)

		ref, ok := s.reference(quotes)
		if !ok {
			continue
		}
		for _, q := range sortedQuotes(quotes) {
			if q.Currency != core.CurrencyKRW {
				continue
			}
			if p, ok := arbitrage.CalculatePremium(q, ref, rate); ok {
				premiums = append(premiums, p)
			}
		}
	}

	arbitrage.SortSpreads(spreads)
	avg := arbitrage.ApplyPurePremium(premiums)

	return &core.Snapshot{
		Kind:            core.SnapshotPrice,
		Timestamp:       time.Now().UTC(),
		Spreads:         spreads,
		Premiums:        premiums,
		AvgPremium:      avg,
		Tickers:         col.Records,
		FailedExchanges: col.Failed,
	}, nil
}

// reference picks the configured USD venue, or the first USD venue by name
func (s *PriceScanner) reference(quotes map[string]core.TickerQuote) (core.TickerQuote, bool) {
	if q, ok := quotes[s.cfg.PremiumReference]; ok && q.Currency != core.CurrencyKRW {
		return q, true
	}
	for _, q := range sortedQuotes(quotes) {
		if q.Currency != core.CurrencyKRW {
			return q, true
		}
	}
	return core.TickerQuote{}, false
}

func usdOnly(quotes map[string]core.TickerQuote) map[string]core.TickerQuote {
	out := make(map[string]core.TickerQuote, len(quotes))
	for name, q := range quotes {
		if q.Currency != core.CurrencyKRW {
			out[name] = q
		}
	}
	return out
}

func sortedQuotes(quotes map[string]core.TickerQuote) []core.TickerQuote {
	out := make([]core.TickerQuote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}
