// Package bybit provides the Bybit v5 market data adapter
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/base"
	apperrors "arb_monitor/pkg/errors"
)

const (
	defaultBybitURL = "https://api.bybit.com"
	tickersPath     = "/v5/market/tickers"
)

// BybitExchange implements IMarketData for Bybit
type BybitExchange struct {
	*base.BaseAdapter
}

// NewBybitExchange creates a new Bybit adapter
func NewBybitExchange(cfg config.ExchangeConfig, logger core.ILogger) *BybitExchange {
	b := base.NewBaseAdapter("bybit", cfg, defaultBybitURL, logger)
	e := &BybitExchange{BaseAdapter: b}
	b.SetParseError(e.parseError)
	return e
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string       `json:"category"`
		List     []tickerItem `json:"list"`
	} `json:"result"`
	Time int64 `json:"time"`
}

type tickerItem struct {
	Symbol              string `json:"symbol"`
	LastPrice           string `json:"lastPrice"`
	MarkPrice           string `json:"markPrice"`
	IndexPrice          string `json:"indexPrice"`
	Bid1Price           string `json:"bid1Price"`
	Ask1Price           string `json:"ask1Price"`
	FundingRate         string `json:"fundingRate"`
	NextFundingTime     string `json:"nextFundingTime"`
	FundingIntervalHour string `json:"fundingIntervalHour"`
}

func (e *BybitExchange) parseError(body []byte) error {
	var errResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("bybit error (unmarshal failed): %s", string(body))
	}

	return mapRetCode(errResp.RetCode, errResp.RetMsg)
}

// https://bybit-exchange.github.io/docs/v5/error
func mapRetCode(code int, msg string) error {
	switch code {
	case 0:
		return nil
	case 10001: // Params error, returned for unknown symbols
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, msg)
	case 10006, 10018: // Too many visits
		return apperrors.ErrRateLimitExceeded
	case 10016: // Server error
		return apperrors.ErrExchangeMaintenance
	}

	return fmt.Errorf("bybit error: %s (%d)", msg, code)
}

func toBybitSymbol(symbol string) string {
	b, q := core.SplitSymbol(symbol)
	return b + q
}

func (e *BybitExchange) fetchTicker(ctx context.Context, category, symbol string) (*tickerItem, time.Time, error) {
	var resp tickersResponse
	params := map[string]string{"category": category, "symbol": toBybitSymbol(symbol)}
	if err := e.GetJSON(ctx, tickersPath, params, &resp); err != nil {
		return nil, time.Time{}, err
	}
	// Bybit reports most errors with HTTP 200
	if resp.RetCode != 0 {
		return nil, time.Time{}, e.MapError(mapRetCode(resp.RetCode, resp.RetMsg))
	}
	if len(resp.Result.List) == 0 {
		return nil, time.Time{}, e.NotListed(symbol)
	}
	return &resp.Result.List[0], e.ParseTimestamp(resp.Time), nil
}

// Name implements IMarketData
func (e *BybitExchange) Name() string {
	return e.GetName()
}

// FetchTicker returns the spot ticker
func (e *BybitExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	item, ts, err := e.fetchTicker(ctx, "spot", symbol)
	if err != nil {
		return nil, err
	}
	last, err := e.ParseRequiredDecimal("lastPrice", item.LastPrice)
	if err != nil {
		return nil, err
	}
	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyUSD,
		Last:      last,
		Bid:       e.ParseDecimal(item.Bid1Price),
		Ask:       e.ParseDecimal(item.Ask1Price),
		Timestamp: ts,
	}, nil
}

// FetchFundingRate returns the linear perpetual funding rate
func (e *BybitExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	item, ts, err := e.fetchTicker(ctx, "linear", symbol)
	if err != nil {
		return nil, err
	}
	rate, err := e.ParseRequiredDecimal("fundingRate", item.FundingRate)
	if err != nil {
		return nil, err
	}
	markPrice, err := e.ParseRequiredDecimal("markPrice", item.MarkPrice)
	if err != nil {
		return nil, err
	}
	return &core.FundingRate{
		Exchange:        e.Name(),
		Symbol:          core.NormalizeSymbol(symbol),
		Rate:            rate,
		IntervalHours:   e.ParseDecimal(item.FundingIntervalHour),
		MarkPrice:       markPrice,
		IndexPrice:      e.ParseDecimal(item.IndexPrice),
		NextFundingTime: e.ParseTimestampString(item.NextFundingTime),
		Timestamp:       ts,
	}, nil
}
