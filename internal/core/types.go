package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote currencies
const (
	CurrencyUSD = "USD" // USD and USD stablecoins
	CurrencyKRW = "KRW"
)

// Snapshot kinds
const (
	SnapshotFunding = "funding"
	SnapshotPrice   = "price"
)

// TickerQuote is a normalized ticker produced by an exchange adapter
type TickerQuote struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	MarkPrice decimal.Decimal `json:"mark_price"` // futures only
	Timestamp time.Time       `json:"timestamp"`
}

// BuyPrice returns the price paid when lifting the offer
func (t TickerQuote) BuyPrice() decimal.Decimal {
	if t.Ask.IsPositive() {
		return t.Ask
	}
	return t.Last
}

// SellPrice returns the price received when hitting the bid
func (t TickerQuote) SellPrice() decimal.Decimal {
	if t.Bid.IsPositive() {
		return t.Bid
	}
	return t.Last
}

// FundingRate is a normalized perpetual funding rate.
// Rate is per settlement; positive means longs pay shorts.
type FundingRate struct {
	Exchange        string          `json:"exchange"`
	Symbol          string          `json:"symbol"`
	Rate            decimal.Decimal `json:"rate"`
	IntervalHours   decimal.Decimal `json:"interval_hours"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	IndexPrice      decimal.Decimal `json:"index_price"`
	NextFundingTime time.Time       `json:"next_funding_time"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ExchangeFeeProfile holds static trading fees for a venue
type ExchangeFeeProfile struct {
	Exchange      string          `json:"exchange" yaml:"exchange"`
	MakerFee      decimal.Decimal `json:"maker_fee" yaml:"maker_fee"`
	TakerFee      decimal.Decimal `json:"taker_fee" yaml:"taker_fee"`
	WithdrawalFee decimal.Decimal `json:"withdrawal_fee" yaml:"withdrawal_fee"`
}

// SpreadResult is one direction of a cross-exchange price arbitrage
type SpreadResult struct {
	Symbol           string          `json:"symbol"`
	BuyExchange      string          `json:"buy_exchange"`
	SellExchange     string          `json:"sell_exchange"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	BuyCost          decimal.Decimal `json:"buy_cost"`
	SellRevenue      decimal.Decimal `json:"sell_revenue"`
	PriceDifference  decimal.Decimal `json:"price_difference"`
	RawSpreadPercent decimal.Decimal `json:"raw_spread_percent"`
	ProfitPercent    decimal.Decimal `json:"profit_percent"`
	ProfitAmount     decimal.Decimal `json:"profit_amount"`
	IsProfitable     bool            `json:"is_profitable"`
	Timestamp        time.Time       `json:"timestamp"`
}

// FundingOpportunity is a ranked funding-rate arbitrage candidate
type FundingOpportunity struct {
	Rank                int             `json:"rank"`
	Symbol              string          `json:"symbol"`
	LongExchange        string          `json:"long_exchange"`
	ShortExchange       string          `json:"short_exchange"`
	LongFundingRate     decimal.Decimal `json:"long_funding_rate"`
	ShortFundingRate    decimal.Decimal `json:"short_funding_rate"`
	LongIntervalHours   decimal.Decimal `json:"long_funding_interval"`
	ShortIntervalHours  decimal.Decimal `json:"short_funding_interval"`
	LongRateHourly      decimal.Decimal `json:"long_funding_rate_hourly"`
	ShortRateHourly     decimal.Decimal `json:"short_funding_rate_hourly"`
	FundingSpread       decimal.Decimal `json:"funding_spread"`
	FundingSpreadHourly decimal.Decimal `json:"funding_spread_hourly"`
	EstimatedAPR        decimal.Decimal `json:"estimated_apr"`
	LongMarkPrice       decimal.Decimal `json:"long_mark_price"`
	ShortMarkPrice      decimal.Decimal `json:"short_mark_price"`
	PriceSpreadPercent  decimal.Decimal `json:"price_spread_percent"`
}

// FundingRequest is an on-demand funding arbitrage query
type FundingRequest struct {
	Symbol        string          `json:"symbol"`
	LongExchange  string          `json:"long_exchange"`
	ShortExchange string          `json:"short_exchange"`
	PositionSize  decimal.Decimal `json:"position_size"`
	Leverage      decimal.Decimal `json:"leverage"`
	HoldingHours  decimal.Decimal `json:"holding_hours"`
}

// FundingCalculation is the full result of a FundingRequest
type FundingCalculation struct {
	Symbol                 string          `json:"symbol"`
	LongExchange           string          `json:"long_exchange"`
	ShortExchange          string          `json:"short_exchange"`
	LongFundingRate        decimal.Decimal `json:"long_funding_rate"`
	ShortFundingRate       decimal.Decimal `json:"short_funding_rate"`
	LongIntervalHours      decimal.Decimal `json:"long_funding_interval"`
	ShortIntervalHours     decimal.Decimal `json:"short_funding_interval"`
	LongRateHourly         decimal.Decimal `json:"long_funding_rate_hourly"`
	ShortRateHourly        decimal.Decimal `json:"short_funding_rate_hourly"`
	FundingSpreadHourly    decimal.Decimal `json:"funding_spread_hourly"`
	FundingSpread          decimal.Decimal `json:"funding_spread"` // per settlement
	SettlementHours        decimal.Decimal `json:"settlement_interval"`
	EstimatedAPR           decimal.Decimal `json:"estimated_apr"`
	LongMarkPrice          decimal.Decimal `json:"long_mark_price"`
	ShortMarkPrice         decimal.Decimal `json:"short_mark_price"`
	PriceSpreadPercent     decimal.Decimal `json:"price_spread_percent"`
	PerFundingProfit       decimal.Decimal `json:"per_funding_profit"`
	TotalFundingCount      int64           `json:"total_funding_count"`
	EstimatedTotalProfit   decimal.Decimal `json:"estimated_total_profit"`
	EstimatedProfitPercent decimal.Decimal `json:"estimated_profit_percent"`
	DailyProfit            decimal.Decimal `json:"daily_profit"`
	RequiredMargin         decimal.Decimal `json:"required_margin"`
	PositionSize           decimal.Decimal `json:"position_size"`
	Leverage               decimal.Decimal `json:"leverage"`
	HoldingHours           decimal.Decimal `json:"holding_hours"`
	Timestamp              time.Time       `json:"timestamp"`
}

// PremiumQuote compares a KRW venue against a USD reference venue
type PremiumQuote struct {
	Symbol             string          `json:"symbol"`
	LocalExchange      string          `json:"local_exchange"`
	ReferenceExchange  string          `json:"reference_exchange"`
	LocalPrice         decimal.Decimal `json:"local_price"`
	ReferencePrice     decimal.Decimal `json:"reference_price"`
	ConversionRate     decimal.Decimal `json:"conversion_rate"`
	PremiumPercent     decimal.Decimal `json:"premium_percent"`
	PurePremiumPercent decimal.Decimal `json:"pure_premium_percent"`
}

// Snapshot is the immutable result of one refresh cycle.
// It is built completely before publication and never mutated afterwards.
type Snapshot struct {
	Kind            string                            `json:"kind"`
	Sequence        uint64                            `json:"sequence"`
	Timestamp       time.Time                         `json:"timestamp"`
	Opportunities   []FundingOpportunity              `json:"opportunities,omitempty"`
	Spreads         []SpreadResult                    `json:"spreads,omitempty"`
	Premiums        []PremiumQuote                    `json:"premiums,omitempty"`
	AvgPremium      decimal.Decimal                   `json:"avg_premium"`
	Rates           map[string]map[string]FundingRate `json:"rates,omitempty"`   // symbol -> exchange -> rate
	Tickers         map[string]map[string]TickerQuote `json:"tickers,omitempty"` // symbol -> exchange -> quote
	FailedExchanges []string                          `json:"failed_exchanges,omitempty"`
	Restored        bool                              `json:"restored"`
}

// Rate returns the funding rate the snapshot holds for (exchange, symbol)
func (s *Snapshot) Rate(exchange, symbol string) (FundingRate, bool) {
	if s == nil {
		return FundingRate{}, false
	}
	byExchange, ok := s.Rates[symbol]
	if !ok {
		return FundingRate{}, false
	}
	rate, ok := byExchange[exchange]
	return rate, ok
}

// Total returns the number of entries carried by the snapshot
func (s *Snapshot) Total() int {
	if s == nil {
		return 0
	}
	if s.Kind == SnapshotPrice {
		return len(s.Spreads)
	}
	return len(s.Opportunities)
}
