package arbitrage

import (
	"sort"

	"arb_monitor/internal/core"

	"github.com/shopspring/decimal"
)

var (
	// DefaultFee applies to exchanges missing from the table
	DefaultFee = decimal.RequireFromString("0.002")
	// DefaultIntervalHours applies to exchanges without a known funding schedule
	DefaultIntervalHours = decimal.NewFromInt(8)
)

type feeEntry struct {
	maker, taker string
	interval     int64 // hours, 0 when the venue has no perpetuals
}

var builtinFees = map[string]feeEntry{
	"binance":     {"0.001", "0.001", 8},
	"bybit":       {"0.001", "0.001", 8},
	"okx":         {"0.0008", "0.001", 8},
	"gate":        {"0.002", "0.002", 8},
	"hyperliquid": {"0.0002", "0.0005", 1},
	"lighter":     {"0", "0", 1},
	"coinbase":    {"0.004", "0.006", 0},
	"kraken":      {"0.0016", "0.0026", 0},
	"kucoin":      {"0.001", "0.001", 0},
	"upbit":       {"0.0005", "0.0005", 0},
}

// FeeOverride replaces parts of an exchange's built-in profile. Nil fields keep the default.
type FeeOverride struct {
	MakerFee             *decimal.Decimal
	TakerFee             *decimal.Decimal
	WithdrawalFee        *decimal.Decimal
	FundingIntervalHours decimal.Decimal // zero keeps the default
}

// FeeTable holds fee profiles and funding intervals per exchange.
// It is built once at start-up and only read afterwards.
type FeeTable struct {
	profiles  map[string]core.ExchangeFeeProfile
	intervals map[string]decimal.Decimal
}

// DefaultFeeTable returns the built-in table
func DefaultFeeTable() *FeeTable {
	return NewFeeTable(nil)
}

// NewFeeTable returns the built-in table with overrides applied
func NewFeeTable(overrides map[string]FeeOverride) *FeeTable {
	t := &FeeTable{
		profiles:  make(map[string]core.ExchangeFeeProfile, len(builtinFees)+len(overrides)),
		intervals: make(map[string]decimal.Decimal, len(builtinFees)+len(overrides)),
	}

	for name, e := range builtinFees {
		t.profiles[name] = core.ExchangeFeeProfile{
			Exchange: name,
			MakerFee: decimal.RequireFromString(e.maker),
			TakerFee: decimal.RequireFromString(e.taker),
		}
		if e.interval > 0 {
			t.intervals[name] = decimal.NewFromInt(e.interval)
		}
	}

	for name, o := range overrides {
		p := t.Profile(name)
		if o.MakerFee != nil {
			p.MakerFee = *o.MakerFee
		}
		if o.TakerFee != nil {
			p.TakerFee = *o.TakerFee
		}
		if o.WithdrawalFee != nil {
			p.WithdrawalFee = *o.WithdrawalFee
		}
		t.profiles[name] = p
		if o.FundingIntervalHours.IsPositive() {
			t.intervals[name] = o.FundingIntervalHours
		}
	}

	return t
}

// Profile returns the fee profile for an exchange, falling back to DefaultFee
func (t *FeeTable) Profile(exchange string) core.ExchangeFeeProfile {
	if p, ok := t.profiles[exchange]; ok {
		return p
	}
	return core.ExchangeFeeProfile{
		Exchange: exchange,
		MakerFee: DefaultFee,
		TakerFee: DefaultFee,
	}
}

// IntervalHours returns the funding interval for an exchange, falling back to DefaultIntervalHours
func (t *FeeTable) IntervalHours(exchange string) decimal.Decimal {
	if h, ok := t.intervals[exchange]; ok {
		return h
	}
	return DefaultIntervalHours
}

// HasFundingSchedule reports whether the exchange has a known funding interval
func (t *FeeTable) HasFundingSchedule(exchange string) bool {
	_, ok := t.intervals[exchange]
	return ok
}

// Exchanges returns every exchange in the table, sorted
func (t *FeeTable) Exchanges() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
