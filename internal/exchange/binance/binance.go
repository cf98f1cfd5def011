// Package binance provides the Binance market data adapter on top of go-binance
package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/retry"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	defaultSpotURL    = "https://api.binance.com"
	defaultFuturesURL = "https://fapi.binance.com"
)

// BinanceExchange implements IMarketData with USDⓈ-M futures funding and spot book tickers
type BinanceExchange struct {
	spot    *gobinance.Client
	futures *futures.Client
	policy  retry.Policy
	logger  core.ILogger

	intervals *intervalCache
}

// NewBinanceExchange creates a new Binance adapter
func NewBinanceExchange(cfg config.ExchangeConfig, logger core.ILogger) *BinanceExchange {
	httpClient := &http.Client{Timeout: cfg.Timeout()}

	spot := gobinance.NewClient(cfg.APIKey.Reveal(), cfg.SecretKey.Reveal())
	spot.HTTPClient = httpClient
	spot.BaseURL = defaultSpotURL
	if cfg.BaseURL != "" {
		spot.BaseURL = cfg.BaseURL
	}

	fut := futures.NewClient(cfg.APIKey.Reveal(), cfg.SecretKey.Reveal())
	fut.HTTPClient = httpClient
	fut.BaseURL = defaultFuturesURL
	if cfg.FuturesBaseURL != "" {
		fut.BaseURL = cfg.FuturesBaseURL
	}

	return &BinanceExchange{
		spot:      spot,
		futures:   fut,
		policy:    retry.DefaultPolicy,
		logger:    logger.WithField("exchange", "binance"),
		intervals: newIntervalCache(),
	}
}

func toBinanceSymbol(symbol string) string {
	b, q := core.SplitSymbol(symbol)
	return b + q
}

// isTransientError retries network failures and server-side errors, never API rejections
func (e *BinanceExchange) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if common.IsAPIError(err) {
		return false
	}
	return errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "timeout")
}

// mapError converts go-binance errors to sentinel errors
func (e *BinanceExchange) mapError(symbol string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// https://developers.binance.com/docs/binance-spot-api-docs/errors
		switch apiErr.Code {
		case -1121: // Invalid symbol
			return fmt.Errorf("%w: binance does not list %s: %w", apperrors.ErrDataUnavailable, symbol, apperrors.ErrInvalidSymbol)
		case -1003, -1015: // Too many requests
			return fmt.Errorf("%w: binance: %w", apperrors.ErrExchangeUnavailable, apperrors.ErrRateLimitExceeded)
		case -1001, -1008: // Disconnected, server busy
			return fmt.Errorf("%w: binance: %w", apperrors.ErrExchangeUnavailable, apperrors.ErrExchangeMaintenance)
		}
	}
	return fmt.Errorf("%w: binance: %w", apperrors.ErrExchangeUnavailable, err)
}

// Name implements IMarketData
func (e *BinanceExchange) Name() string {
	return "binance"
}

// FetchTicker returns the spot book ticker; last is the mid price
func (e *BinanceExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	var tickers []*gobinance.BookTicker
	err := retry.Do(ctx, e.policy, e.isTransientError, func() error {
		var err error
		tickers, err = e.spot.NewListBookTickersService().Symbol(toBinanceSymbol(symbol)).Do(ctx)
		return err
	})
	if err != nil {
		return nil, e.mapError(symbol, err)
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return nil, fmt.Errorf("%w: binance does not list %s", apperrors.ErrDataUnavailable, symbol)
	}

	t := tickers[0]
	bid, err := e.parseRequired("bidPrice", t.BidPrice)
	if err != nil {
		return nil, err
	}
	ask, err := e.parseRequired("askPrice", t.AskPrice)
	if err != nil {
		return nil, err
	}
	last := decimal.Zero
	if bid.IsPositive() && ask.IsPositive() {
		last = bid.Add(ask).Div(decimal.NewFromInt(2))
	}

	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyUSD,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now().UTC(),
	}, nil
}

// FetchFundingRate returns the last funding rate from the futures premium index.
// The interval comes from fundingInfo; symbols it does not list are left for the
// scanner to fill from configuration.
func (e *BinanceExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	var indexes []*futures.PremiumIndex
	err := retry.Do(ctx, e.policy, e.isTransientError, func() error {
		var err error
		indexes, err = e.futures.NewPremiumIndexService().Symbol(toBinanceSymbol(symbol)).Do(ctx)
		return err
	})
	if err != nil {
		return nil, e.mapError(symbol, err)
	}
	if len(indexes) == 0 || indexes[0] == nil {
		return nil, fmt.Errorf("%w: binance does not list %s", apperrors.ErrDataUnavailable, symbol)
	}

	p := indexes[0]
	fundingRate, err := e.parseRequired("lastFundingRate", p.LastFundingRate)
	if err != nil {
		return nil, err
	}
	markPrice, err := e.parseRequired("markPrice", p.MarkPrice)
	if err != nil {
		return nil, err
	}

	rate := &core.FundingRate{
		Exchange:      e.Name(),
		Symbol:        core.NormalizeSymbol(symbol),
		Rate:          fundingRate,
		IntervalHours: e.fundingInterval(ctx, p.Symbol),
		MarkPrice:     markPrice,
		IndexPrice:    parseDecimal(p.IndexPrice),
		Timestamp:     time.Now().UTC(),
	}
	if p.NextFundingTime > 0 {
		rate.NextFundingTime = time.UnixMilli(p.NextFundingTime).UTC()
	}
	if p.Time > 0 {
		rate.Timestamp = time.UnixMilli(p.Time).UTC()
	}
	return rate, nil
}

// parseRequired rejects empty or malformed values so the record is never built on a made-up zero
func (e *BinanceExchange) parseRequired(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: binance: malformed %s %q", apperrors.ErrExchangeUnavailable, field, s)
	}
	return d, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
