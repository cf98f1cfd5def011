// Package okx provides the OKX v5 market data adapter
package okx

import (
	"context"
	"encoding/json"
	"fmt"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/base"
	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOKXURL   = "https://www.okx.com"
	fundingRatePath = "/api/v5/public/funding-rate"
	markPricePath   = "/api/v5/public/mark-price"
	tickerPath      = "/api/v5/market/ticker"

	defaultIntervalHours = 8
)

// OKXExchange implements IMarketData for OKX
type OKXExchange struct {
	*base.BaseAdapter
}

// NewOKXExchange creates a new OKX adapter
func NewOKXExchange(cfg config.ExchangeConfig, logger core.ILogger) *OKXExchange {
	b := base.NewBaseAdapter("okx", cfg, defaultOKXURL, logger)
	e := &OKXExchange{BaseAdapter: b}
	b.SetParseError(e.parseError)
	return e
}

// envelope is the common OKX response wrapper
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type fundingItem struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
	Ts              string `json:"ts"`
}

type markPriceItem struct {
	InstID string `json:"instId"`
	MarkPx string `json:"markPx"`
	Ts     string `json:"ts"`
}

type tickerItem struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

func (e *OKXExchange) parseError(body []byte) error {
	var errResp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("okx error (unmarshal failed): %s", string(body))
	}
	return mapCode(errResp.Code, errResp.Msg)
}

// https://www.okx.com/docs-v5/en/#error-code-details
func mapCode(code, msg string) error {
	switch code {
	case "0", "":
		return nil
	case "51001", "51000": // Instrument ID does not exist, parameter error
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, msg)
	case "50011", "50061": // Rate limit
		return apperrors.ErrRateLimitExceeded
	case "50001": // Service temporarily unavailable
		return apperrors.ErrExchangeMaintenance
	}

	return fmt.Errorf("okx error: %s (%s)", msg, code)
}

func toSpotInstID(symbol string) string {
	b, q := core.SplitSymbol(symbol)
	return b + "-" + q
}

func toSwapInstID(symbol string) string {
	return toSpotInstID(symbol) + "-SWAP"
}

func get[T any](ctx context.Context, e *OKXExchange, path, symbol string, params map[string]string) (*T, error) {
	var resp envelope[T]
	if err := e.GetJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	if err := mapCode(resp.Code, resp.Msg); err != nil {
		return nil, e.MapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, e.NotListed(symbol)
	}
	return &resp.Data[0], nil
}

// Name implements IMarketData
func (e *OKXExchange) Name() string {
	return e.GetName()
}

// FetchTicker returns the spot ticker
func (e *OKXExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	item, err := get[tickerItem](ctx, e, tickerPath, symbol, map[string]string{"instId": toSpotInstID(symbol)})
	if err != nil {
		return nil, err
	}
	last, err := e.ParseRequiredDecimal("last", item.Last)
	if err != nil {
		return nil, err
	}
	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyUSD,
		Last:      last,
		Bid:       e.ParseDecimal(item.BidPx),
		Ask:       e.ParseDecimal(item.AskPx),
		Timestamp: e.ParseTimestampString(item.Ts),
	}, nil
}

// FetchFundingRate returns the swap funding rate with its mark price.
// The interval is derived from the gap between the current and next settlement.
func (e *OKXExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	instID := toSwapInstID(symbol)

	var funding *fundingItem
	var mark *markPriceItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		funding, err = get[fundingItem](gctx, e, fundingRatePath, symbol, map[string]string{"instId": instID})
		return err
	})
	g.Go(func() error {
		var err error
		mark, err = get[markPriceItem](gctx, e, markPricePath, symbol, map[string]string{"instType": "SWAP", "instId": instID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rate, err := e.ParseRequiredDecimal("fundingRate", funding.FundingRate)
	if err != nil {
		return nil, err
	}
	markPrice, err := e.ParseRequiredDecimal("markPx", mark.MarkPx)
	if err != nil {
		return nil, err
	}

	fundingTime := e.ParseTimestampString(funding.FundingTime)
	nextFunding := e.ParseTimestampString(funding.NextFundingTime)

	interval := decimal.NewFromInt(defaultIntervalHours)
	if !fundingTime.IsZero() && nextFunding.After(fundingTime) {
		interval = decimal.NewFromFloat(nextFunding.Sub(fundingTime).Hours())
	}

	return &core.FundingRate{
		Exchange:        e.Name(),
		Symbol:          core.NormalizeSymbol(symbol),
		Rate:            rate,
		IntervalHours:   interval,
		MarkPrice:       markPrice,
		NextFundingTime: fundingTime,
		Timestamp:       e.ParseTimestampString(funding.Ts),
	}, nil
}
