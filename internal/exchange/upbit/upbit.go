// Package upbit provides the Upbit KRW spot market data adapter
package upbit

import (
	"context"
	"encoding/json"
	"fmt"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/base"
	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	defaultUpbitURL = "https://api.upbit.com"
	tickerPath      = "/v1/ticker"
)

// UpbitExchange implements IMarketData for Upbit.
// Every symbol is quoted in KRW regardless of the requested quote asset.
type UpbitExchange struct {
	*base.BaseAdapter
}

// NewUpbitExchange creates a new Upbit adapter
func NewUpbitExchange(cfg config.ExchangeConfig, logger core.ILogger) *UpbitExchange {
	b := base.NewBaseAdapter("upbit", cfg, defaultUpbitURL, logger)
	e := &UpbitExchange{BaseAdapter: b}
	b.SetParseError(e.parseError)
	return e
}

type tickerItem struct {
	Market     string  `json:"market"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

func (e *UpbitExchange) parseError(body []byte) error {
	var errResp struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("upbit error (unmarshal failed): %s", string(body))
	}

	switch errResp.Error.Name {
	case "":
		return nil
	case "Code not found", "invalid_market":
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, errResp.Error.Message)
	case "too_many_requests":
		return apperrors.ErrRateLimitExceeded
	}

	return fmt.Errorf("upbit error: %s (%s)", errResp.Error.Message, errResp.Error.Name)
}

func toUpbitMarket(symbol string) string {
	b, _ := core.SplitSymbol(symbol)
	return "KRW-" + b
}

// Name implements IMarketData
func (e *UpbitExchange) Name() string {
	return e.GetName()
}

// FetchTicker returns the KRW trade price
func (e *UpbitExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	var items []tickerItem
	if err := e.GetJSON(ctx, tickerPath, map[string]string{"markets": toUpbitMarket(symbol)}, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 || items[0].TradePrice <= 0 {
		return nil, e.NotListed(symbol)
	}

	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyKRW,
		Last:      decimal.NewFromFloat(items[0].TradePrice),
		Timestamp: e.ParseTimestamp(items[0].Timestamp),
	}, nil
}

// FetchFundingRate always reports ErrDataUnavailable: Upbit has no perpetuals
func (e *UpbitExchange) FetchFundingRate(_ context.Context, symbol string) (*core.FundingRate, error) {
	return nil, fmt.Errorf("%w: upbit has no perpetual for %s", apperrors.ErrDataUnavailable, symbol)
}
