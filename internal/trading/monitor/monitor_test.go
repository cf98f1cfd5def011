package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/concurrency"
	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(msg string, fields ...interface{})               {}
func (m *MockLogger) Info(msg string, fields ...interface{})                {}
func (m *MockLogger) Warn(msg string, fields ...interface{})                {}
func (m *MockLogger) Error(msg string, fields ...interface{})               {}
func (m *MockLogger) Fatal(msg string, fields ...interface{})               {}
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

// fakeExchange serves canned records; symbols missing from both maps are unavailable
type fakeExchange struct {
	name string

	mu      sync.Mutex
	tickers map[string]core.TickerQuote
	rates   map[string]core.FundingRate
	err     error
	delay   time.Duration
	calls   int
}

func newFakeExchange(name string) *fakeExchange {
	return &fakeExchange{
		name:    name,
		tickers: make(map[string]core.TickerQuote),
		rates:   make(map[string]core.FundingRate),
	}
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) withRate(symbol, rate, interval string) *fakeExchange {
	f.rates[symbol] = core.FundingRate{
		Exchange:      f.name,
		Symbol:        symbol,
		Rate:          decimal.RequireFromString(rate),
		IntervalHours: decimal.RequireFromString(interval),
		MarkPrice:     decimal.NewFromInt(50000),
	}
	return f
}

func (f *fakeExchange) withTicker(symbol, currency, bid, ask string) *fakeExchange {
	b, a := decimal.RequireFromString(bid), decimal.RequireFromString(ask)
	f.tickers[symbol] = core.TickerQuote{
		Exchange: f.name,
		Symbol:   symbol,
		Currency: currency,
		Bid:      b,
		Ask:      a,
		Last:     b.Add(a).Div(decimal.NewFromInt(2)),
	}
	return f
}

func (f *fakeExchange) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeExchange) wait(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	delay, err := f.delay, f.err
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrDataUnavailable, f.name, symbol)
	}
	return &q, nil
}

func (f *fakeExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rates[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrDataUnavailable, f.name, symbol)
	}
	return &r, nil
}

func newTestPool(t *testing.T) *concurrency.WorkerPool {
	t.Helper()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 64}, &MockLogger{})
	t.Cleanup(pool.Stop)
	return pool
}

func newTestCollector(t *testing.T, exchanges ...*fakeExchange) *Collector {
	t.Helper()
	adapters := make([]core.IMarketData, len(exchanges))
	for i, ex := range exchanges {
		adapters[i] = ex
	}
	return NewCollector(adapters, newTestPool(t), &MockLogger{})
}
