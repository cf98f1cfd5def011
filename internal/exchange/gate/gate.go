// Package gate provides the Gate.io v4 market data adapter
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/base"
	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

const (
	defaultGateURL = "https://api.gateio.ws"
	contractPath   = "/api/v4/futures/usdt/contracts/"
	spotTickerPath = "/api/v4/spot/tickers"
)

// GateExchange implements IMarketData for Gate.io
type GateExchange struct {
	*base.BaseAdapter
}

// NewGateExchange creates a new Gate.io adapter
func NewGateExchange(cfg config.ExchangeConfig, logger core.ILogger) *GateExchange {
	b := base.NewBaseAdapter("gate", cfg, defaultGateURL, logger)
	e := &GateExchange{BaseAdapter: b}
	b.SetParseError(e.parseError)
	return e
}

type contractResponse struct {
	Name             string `json:"name"`
	FundingRate      string `json:"funding_rate"`
	FundingInterval  int64  `json:"funding_interval"` // seconds
	FundingNextApply int64  `json:"funding_next_apply"`
	MarkPrice        string `json:"mark_price"`
	IndexPrice       string `json:"index_price"`
	LastPrice        string `json:"last_price"`
}

type spotTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
	LowestAsk    string `json:"lowest_ask"`
	HighestBid   string `json:"highest_bid"`
}

func (e *GateExchange) parseError(body []byte) error {
	var errResp struct {
		Label   string `json:"label"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("gate error (unmarshal failed): %s", string(body))
	}

	switch errResp.Label {
	case "INVALID_CURRENCY", "INVALID_CURRENCY_PAIR", "CONTRACT_NOT_FOUND":
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, errResp.Message)
	case "TOO_MANY_REQUESTS":
		return apperrors.ErrRateLimitExceeded
	case "SERVER_ERROR":
		return apperrors.ErrExchangeMaintenance
	}

	return fmt.Errorf("gate error: %s (%s)", errResp.Message, errResp.Label)
}

func toGateSymbol(symbol string) string {
	b, q := core.SplitSymbol(symbol)
	return b + "_" + q
}

// Name implements IMarketData
func (e *GateExchange) Name() string {
	return e.GetName()
}

// FetchTicker returns the spot ticker
func (e *GateExchange) FetchTicker(ctx context.Context, symbol string) (*core.TickerQuote, error) {
	var tickers []spotTicker
	if err := e.GetJSON(ctx, spotTickerPath, map[string]string{"currency_pair": toGateSymbol(symbol)}, &tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, e.NotListed(symbol)
	}

	t := tickers[0]
	last, err := e.ParseRequiredDecimal("last", t.Last)
	if err != nil {
		return nil, err
	}
	return &core.TickerQuote{
		Exchange:  e.Name(),
		Symbol:    core.NormalizeSymbol(symbol),
		Currency:  core.CurrencyUSD,
		Last:      last,
		Bid:       e.ParseDecimal(t.HighestBid),
		Ask:       e.ParseDecimal(t.LowestAsk),
		Timestamp: time.Now().UTC(),
	}, nil
}

// FetchFundingRate returns the USDT perpetual funding rate from the contract details
func (e *GateExchange) FetchFundingRate(ctx context.Context, symbol string) (*core.FundingRate, error) {
	var c contractResponse
	if err := e.GetJSON(ctx, contractPath+toGateSymbol(symbol), nil, &c); err != nil {
		return nil, err
	}
	if c.Name == "" {
		return nil, e.NotListed(symbol)
	}

	rate, err := e.ParseRequiredDecimal("funding_rate", c.FundingRate)
	if err != nil {
		return nil, err
	}
	markPrice, err := e.ParseRequiredDecimal("mark_price", c.MarkPrice)
	if err != nil {
		return nil, err
	}

	interval := decimal.Zero
	if c.FundingInterval > 0 {
		interval = decimal.NewFromInt(c.FundingInterval).Div(decimal.NewFromInt(3600))
	}

	var next time.Time
	if c.FundingNextApply > 0 {
		next = time.Unix(c.FundingNextApply, 0).UTC()
	}

	return &core.FundingRate{
		Exchange:        e.Name(),
		Symbol:          core.NormalizeSymbol(symbol),
		Rate:            rate,
		IntervalHours:   interval,
		MarkPrice:       markPrice,
		IndexPrice:      e.ParseDecimal(c.IndexPrice),
		NextFundingTime: next,
		Timestamp:       time.Now().UTC(),
	}, nil
}
