package binance

import (
	"context"
	"sync"
	"time"

	"arb_monitor/pkg/retry"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const fundingInfoTTL = time.Hour

// intervalCache holds the per-symbol funding intervals from /fapi/v1/fundingInfo.
// Binance only lists symbols whose settings differ from the 8h default.
type intervalCache struct {
	mu        sync.RWMutex
	hours     map[string]decimal.Decimal
	fetchedAt time.Time

	group singleflight.Group
}

func newIntervalCache() *intervalCache {
	return &intervalCache{hours: make(map[string]decimal.Decimal)}
}

func (c *intervalCache) fresh(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < fundingInfoTTL
}

func (c *intervalCache) get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hours[symbol]
	return h, ok
}

func (c *intervalCache) store(infos []*futures.FundingRateInfo, now time.Time) {
	hours := make(map[string]decimal.Decimal, len(infos))
	for _, info := range infos {
		if info == nil || info.FundingIntervalHours <= 0 {
			continue
		}
		hours[info.Symbol] = decimal.NewFromInt(info.FundingIntervalHours)
	}

	c.mu.Lock()
	c.hours = hours
	c.fetchedAt = now
	c.mu.Unlock()
}

// fundingInterval returns the settlement interval for a Binance symbol, or zero when
// fundingInfo does not list it. A failed refresh keeps serving the previous table.
func (e *BinanceExchange) fundingInterval(ctx context.Context, symbol string) decimal.Decimal {
	if !e.intervals.fresh(time.Now()) {
		_, err, _ := e.intervals.group.Do("fundingInfo", func() (interface{}, error) {
			if e.intervals.fresh(time.Now()) {
				return nil, nil
			}
			var infos []*futures.FundingRateInfo
			err := retry.Do(ctx, e.policy, e.isTransientError, func() error {
				var err error
				infos, err = e.futures.NewFundingRateInfoService().Do(ctx)
				return err
			})
			if err != nil {
				return nil, err
			}
			e.intervals.store(infos, time.Now())
			e.logger.Debug("Refreshed funding intervals", "symbols", len(infos))
			return nil, nil
		})
		if err != nil {
			e.logger.Warn("Failed to refresh funding intervals", "error", err)
		}
	}

	h, _ := e.intervals.get(symbol)
	return h
}
