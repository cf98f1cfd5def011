package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/concurrency"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// Fetch kinds used in logs and metrics
const (
	KindTicker  = "ticker"
	KindFunding = "funding"
)

// Collection is the result of fetching one record kind from every exchange
type Collection[T any] struct {
	Records map[string]map[string]T // symbol -> exchange -> record
	Failed  []string                // exchanges with no records and at least one real error
	Count   int
}

// Collector fetches (exchange, symbol) records concurrently.
// Exchanges run in parallel; the symbols of one exchange share the worker pool.
type Collector struct {
	exchanges []core.IMarketData
	pool      *concurrency.WorkerPool
	logger    core.ILogger
	metrics   *telemetry.MetricsHolder
}

// NewCollector creates a collector over the given adapters
func NewCollector(exchanges []core.IMarketData, pool *concurrency.WorkerPool, logger core.ILogger) *Collector {
	sorted := append([]core.IMarketData(nil), exchanges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	return &Collector{
		exchanges: sorted,
		pool:      pool,
		logger:    logger.WithField("component", "collector"),
		metrics:   telemetry.GetGlobalMetrics(),
	}
}

// Exchanges returns the adapter names in sorted order
func (c *Collector) Exchanges() []string {
	names := make([]string, len(c.exchanges))
	for i, ex := range c.exchanges {
		names[i] = ex.Name()
	}
	return names
}

// Exchange returns the adapter with the given name
func (c *Collector) Exchange(name string) (core.IMarketData, bool) {
	for _, ex := range c.exchanges {
		if ex.Name() == name {
			return ex, true
		}
	}
	return nil, false
}

// CollectFunding fetches funding rates for every symbol on every exchange
func (c *Collector) CollectFunding(ctx context.Context, symbols []string) (*Collection[core.FundingRate], error) {
	return collect[core.FundingRate](ctx, c, KindFunding, symbols, func(ctx context.Context, ex core.IMarketData, symbol string) (*core.FundingRate, error) {
		return ex.FetchFundingRate(ctx, symbol)
	})
}

// CollectTickers fetches tickers for every symbol on every exchange
func (c *Collector) CollectTickers(ctx context.Context, symbols []string) (*Collection[core.TickerQuote], error) {
	return collect[core.TickerQuote](ctx, c, KindTicker, symbols, func(ctx context.Context, ex core.IMarketData, symbol string) (*core.TickerQuote, error) {
		return ex.FetchTicker(ctx, symbol)
	})
}

type fetchFunc[T any] func(ctx context.Context, ex core.IMarketData, symbol string) (*T, error)

// exchangeResult is what one exchange produced in a cycle
type exchangeResult[T any] struct {
	mu        sync.Mutex
	records   map[string]T // symbol -> record
	failures  int
	lastError error
}

func collect[T any](ctx context.Context, c *Collector, kind string, symbols []string, fetch fetchFunc[T]) (*Collection[T], error) {
	results := make([]*exchangeResult[T], len(c.exchanges))

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range c.exchanges {
		i, ex := i, ex
		res := &exchangeResult[T]{records: make(map[string]T)}
		results[i] = res

		g.Go(func() error {
			tasks := make([]func(context.Context) error, 0, len(symbols))
			for _, symbol := range symbols {
				symbol := symbol
				tasks = append(tasks, func(taskCtx context.Context) error {
					fetchOne(taskCtx, c, ex, kind, symbol, res, fetch)
					return nil
				})
			}
			return c.pool.RunAll(gctx, tasks)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Collection[T]{Records: make(map[string]map[string]T)}
	for i, ex := range c.exchanges {
		res := results[i]
		name := ex.Name()

		if len(res.records) == 0 && res.failures > 0 {
			out.Failed = append(out.Failed, name)
			c.logger.Warn("Exchange failed for cycle",
				"exchange", name,
				"kind", kind,
				"failures", res.failures,
				"error", res.lastError)
			continue
		}

		for symbol, rec := range res.records {
			if out.Records[symbol] == nil {
				out.Records[symbol] = make(map[string]T)
			}
			out.Records[symbol][name] = rec
			out.Count++
		}
	}

	if out.Count == 0 {
		return out, fmt.Errorf("%w: no %s records from %d exchanges", apperrors.ErrExchangeUnavailable, kind, len(c.exchanges))
	}
	return out, nil
}

func fetchOne[T any](ctx context.Context, c *Collector, ex core.IMarketData, kind, symbol string, res *exchangeResult[T], fetch fetchFunc[T]) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	rec, err := fetch(ctx, ex, symbol)
	latency := float64(time.Since(start).Milliseconds())

	switch {
	case err == nil && rec != nil:
		c.metrics.RecordFetch(ctx, ex.Name(), kind, latency, nil)
		res.mu.Lock()
		res.records[symbol] = *rec
		res.mu.Unlock()

	case errors.Is(err, apperrors.ErrDataUnavailable):
		// Venue does not list the symbol; not a failure
		c.logger.Debug("Symbol not available", "exchange", ex.Name(), "kind", kind, "symbol", symbol)

	case ctx.Err() != nil:
		// cycle cancelled, nothing to count

	default:
		if err == nil {
			err = fmt.Errorf("%s returned no %s record", ex.Name(), kind)
		}
		c.metrics.RecordFetch(ctx, ex.Name(), kind, latency, err)
		c.logger.Warn("Fetch failed",
			"exchange", ex.Name(),
			"kind", kind,
			"symbol", symbol,
			"error", err)
		res.mu.Lock()
		res.failures++
		res.lastError = err
		res.mu.Unlock()
	}
}
