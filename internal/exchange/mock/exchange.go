// Package mock provides an in-memory market data adapter for tests and dry runs
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

var basePrices = map[string]string{
	"BTC": "50000", "ETH": "3000", "XRP": "0.6", "SOL": "100", "ADA": "0.4",
	"AVAX": "35", "DOGE": "0.08", "DOT": "7", "LINK": "15",
}

// MockExchange implements IMarketData from in-memory tables.
// Seeded values are skewed by a hash of the name so two mocks quote different prices.
type MockExchange struct {
	name string

	mu           sync.RWMutex
	tickers      map[string]core.TickerQuote
	fundingRates map[string]core.FundingRate
	err          error
}

// NewMockExchange creates a mock seeded with quotes for the default symbols
func NewMockExchange(name string) *MockExchange {
	m := &MockExchange{
		name:         name,
		tickers:      make(map[string]core.TickerQuote),
		fundingRates: make(map[string]core.FundingRate),
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	skew := decimal.NewFromInt(int64(h.Sum32()%21) - 10).Div(decimal.NewFromInt(10000)) // +-0.1%

	for _, symbol := range core.DefaultSymbols {
		b, _ := core.SplitSymbol(symbol)
		price := decimal.RequireFromString(basePrices[b]).Mul(decimal.NewFromInt(1).Add(skew))
		half := price.Mul(decimal.RequireFromString("0.0001"))

		m.tickers[symbol] = core.TickerQuote{
			Exchange: name,
			Symbol:   symbol,
			Currency: core.CurrencyUSD,
			Last:     price,
			Bid:      price.Sub(half),
			Ask:      price.Add(half),
		}
		m.fundingRates[symbol] = core.FundingRate{
			Exchange:      name,
			Symbol:        symbol,
			Rate:          decimal.RequireFromString("0.0001").Add(skew.Div(decimal.NewFromInt(10))),
			IntervalHours: decimal.NewFromInt(8),
			MarkPrice:     price,
			IndexPrice:    price,
		}
	}
	return m
}

// SetTicker replaces the quote for a symbol
func (m *MockExchange) SetTicker(q core.TickerQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.Exchange = m.name
	m.tickers[core.NormalizeSymbol(q.Symbol)] = q
}

// SetFundingRate replaces the funding rate for a symbol
func (m *MockExchange) SetFundingRate(r core.FundingRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Exchange = m.name
	m.fundingRates[core.NormalizeSymbol(r.Symbol)] = r
}

// Remove delists a symbol
func (m *MockExchange) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = core.NormalizeSymbol(symbol)
	delete(m.tickers, symbol)
	delete(m.fundingRates, symbol)
}

// FailWith makes every call return err wrapped in ErrExchangeUnavailable; nil restores normal operation
func (m *MockExchange) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Name implements IMarketData
func (m *MockExchange) Name() string {
	return m.name
}

// FetchTicker implements IMarketData
func (m *MockExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrExchangeUnavailable, m.name, m.err)
	}
	q, ok := m.tickers[core.NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not list %s", apperrors.ErrDataUnavailable, m.name, symbol)
	}
	q.Timestamp = time.Now().UTC()
	return &q, nil
}

// FetchFundingRate implements IMarketData
func (m *MockExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrExchangeUnavailable, m.name, m.err)
	}
	r, ok := m.fundingRates[core.NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not list %s", apperrors.ErrDataUnavailable, m.name, symbol)
	}
	now := time.Now().UTC()
	r.Timestamp = now
	r.NextFundingTime = now.Truncate(8 * time.Hour).Add(8 * time.Hour)
	return &r, nil
}
