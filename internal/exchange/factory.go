// Package exchange provides exchange implementations
package exchange

import (
	"fmt"
	"strings"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange/binance"
	"arb_monitor/internal/exchange/bybit"
	"arb_monitor/internal/exchange/gate"
	"arb_monitor/internal/exchange/hyperliquid"
	"arb_monitor/internal/exchange/mock"
	"arb_monitor/internal/exchange/okx"
	"arb_monitor/internal/exchange/upbit"
)

// NewExchange creates a market data adapter based on configuration.
// A missing exchange section means public endpoints with default settings.
func NewExchange(exchangeName string, cfg *config.Config, logger core.ILogger) (core.IMarketData, error) {
	exchangeConfig := cfg.ExchangeConfigFor(exchangeName)

	switch strings.ToLower(exchangeName) {
	case "binance":
		return binance.NewBinanceExchange(exchangeConfig, logger), nil
	case "bybit":
		return bybit.NewBybitExchange(exchangeConfig, logger), nil
	case "okx":
		return okx.NewOKXExchange(exchangeConfig, logger), nil
	case "gate":
		return gate.NewGateExchange(exchangeConfig, logger), nil
	case "hyperliquid":
		return hyperliquid.NewHyperliquidExchange(exchangeConfig, logger), nil
	case "upbit":
		return upbit.NewUpbitExchange(exchangeConfig, logger), nil
	case "mock":
		logger.Warn("Using mock exchange, quotes are synthetic")
		return mock.NewMockExchange("mock"), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", exchangeName)
	}
}

// NewExchanges creates an adapter for every active exchange
func NewExchanges(cfg *config.Config, logger core.ILogger) ([]core.IMarketData, error) {
	out := make([]core.IMarketData, 0, len(cfg.App.ActiveExchanges))
	for _, name := range cfg.App.ActiveExchanges {
		ex, err := NewExchange(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}
