// Package hyperliquid provides the Hyperliquid perpetuals market data adapter
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/base"

	"github.com/shopspring/decimal"
)

const (
	defaultHyperliquidURL = "https://api.hyperliquid.xyz"
	infoPath              = "/info"
)

// Funding settles every hour
var intervalHours = decimal.NewFromInt(1)

// HyperliquidExchange implements IMarketData for Hyperliquid.
// The venue only lists perpetuals, so the ticker is the perp mid price.
type HyperliquidExchange struct {
	*base.BaseAdapter
}

// NewHyperliquidExchange creates a new Hyperliquid adapter
func NewHyperliquidExchange(cfg config.ExchangeConfig, logger core.ILogger) *HyperliquidExchange {
	b := base.NewBaseAdapter("hyperliquid", cfg, defaultHyperliquidURL, logger)
	return &HyperliquidExchange{BaseAdapter: b}
}

type universeEntry struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
}

type assetCtx struct {
	Funding  string `json:"funding"`
	MarkPx   string `json:"markPx"`
	OraclePx string `json:"oraclePx"`
	MidPx    string `json:"midPx"`
}

// fetchAsset returns the context of the coin named by the symbol's base asset
func (e *HyperliquidExchange) fetchAsset(ctx context.Context, symbol string) (*assetCtx, error) {
	var raw []json.RawMessage
	if err := e.PostJSON(ctx, infoPath, map[string]string{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, err
	}
	if len(raw) != 2 {
		return nil, e.Unavailable(fmt.Errorf("unexpected metaAndAssetCtxs payload with %d parts", len(raw)))
	}

	var meta struct {
		Universe []universeEntry `json:"universe"`
	}
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, e.Unavailable(fmt.Errorf("failed to decode meta: %w", err))
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, e.Unavailable(fmt.Errorf("failed to decode asset contexts: %w", err))
	}

	coin, _ := core.SplitSymbol(symbol)
	for i, u := range meta.Universe {
		if u.Name == coin && i < len(ctxs) {
			return &ctxs[i], nil
		}
	}
	return nil, e.NotListed(symbol)
}

// Name implements IMarketData
func (e *HyperliquidExchange) Name() string {
	return e.GetName()
}

// FetchTicker returns the perp mid price as last; bid and ask are not reported
func (e *HyperliquidExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	asset, err := e.fetchAsset(ctx, symbol)
	if err != nil {
		return nil, err
	}

	markPrice, err := e.ParseRequiredDecimal("markPx", asset.MarkPx)
	if err != nil {
		return nil, err
	}
	// midPx is null when the book is one-sided
	last := e.ParseDecimal(asset.MidPx)
	if !last.IsPositive() {
		last = markPrice
	}
	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyUSD,
		Last:      last,
		MarkPrice: markPrice,
		Timestamp: time.Now().UTC(),
	}, nil
}

// FetchFundingRate returns the hourly funding rate
func (e *HyperliquidExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	asset, err := e.fetchAsset(ctx, symbol)
	if err != nil {
		return nil, err
	}

	rate, err := e.ParseRequiredDecimal("funding", asset.Funding)
	if err != nil {
		return nil, err
	}
	markPrice, err := e.ParseRequiredDecimal("markPx", asset.MarkPx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &core.FundingRate{
		Exchange:        e.Name(),
		Symbol:          core.NormalizeSymbol(symbol),
		Rate:            rate,
		IntervalHours:   intervalHours,
		MarkPrice:       markPrice,
		IndexPrice:      e.ParseDecimal(asset.OraclePx),
		NextFundingTime: now.Truncate(time.Hour).Add(time.Hour),
		Timestamp:       now,
	}, nil
}
