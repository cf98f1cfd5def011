package core

import (
	"context"
)

// IMarketData is the market-data collaborator implemented by every exchange adapter.
// Adapters translate canonical BASE/QUOTE symbols into their own spelling and never
// leak provider-specific payloads past this boundary.
type IMarketData interface {
	// Name returns the lowercase exchange identifier (e.g. "binance")
	Name() string

	// FetchTicker returns the current spot (or perp when the venue has no spot) quote.
	// Upstream failures are wrapped in apperrors.ErrExchangeUnavailable.
	FetchTicker(ctx context.Context, symbol string) (*TickerQuote, error)

	// FetchFundingRate returns the current perpetual funding rate.
	// Venues without perpetuals return apperrors.ErrDataUnavailable.
	FetchFundingRate(ctx context.Context, symbol string) (*FundingRate, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
