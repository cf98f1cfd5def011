// Package base provides common functionality for exchange adapters
package base

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/http"

	"github.com/shopspring/decimal"
)

// ParseErrorFunc maps an exchange error body to a sentinel error, or nil when the body is not an error
type ParseErrorFunc func(body []byte) error

// BaseAdapter provides common functionality for all exchange adapters
type BaseAdapter struct {
	Name   string
	Config config.ExchangeConfig
	Logger core.ILogger
	Client *http.Client

	// Exchange-specific error parsing, set by concrete implementations
	ParseError ParseErrorFunc
}

// NewBaseAdapter creates a base adapter talking to cfg.BaseURL, or defaultURL when unset
func NewBaseAdapter(name string, cfg config.ExchangeConfig, defaultURL string, logger core.ILogger) *BaseAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &BaseAdapter{
		Name:   name,
		Config: cfg,
		Logger: logger.WithField("exchange", name),
		Client: http.NewClient(baseURL, cfg.Timeout()),
	}
}

// GetName returns the exchange name
func (b *BaseAdapter) GetName() string {
	return b.Name
}

// SetParseError sets the exchange-specific error parsing function
func (b *BaseAdapter) SetParseError(fn ParseErrorFunc) {
	b.ParseError = fn
}

// GetJSON issues a GET and decodes the response, mapping failures to sentinel errors
func (b *BaseAdapter) GetJSON(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return b.MapError(b.Client.GetJSON(ctx, path, params, out))
}

// PostJSON issues a JSON POST and decodes the response, mapping failures to sentinel errors
func (b *BaseAdapter) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return b.MapError(b.Client.PostJSON(ctx, path, in, out))
}

// MapError classifies a transport or API error.
// Unknown instruments become ErrDataUnavailable; everything else is wrapped in ErrExchangeUnavailable.
func (b *BaseAdapter) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *http.APIError
	if errors.As(err, &apiErr) && b.ParseError != nil {
		if mapped := b.ParseError(apiErr.Body); mapped != nil {
			err = mapped
		}
	}
	if errors.Is(err, apperrors.ErrDataUnavailable) {
		return err
	}
	if errors.Is(err, apperrors.ErrInvalidSymbol) {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrDataUnavailable, b.Name, err)
	}
	return b.Unavailable(err)
}

// Unavailable wraps err in ErrExchangeUnavailable
func (b *BaseAdapter) Unavailable(err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrExchangeUnavailable, b.Name, err)
}

// NotListed reports a symbol the exchange does not list
func (b *BaseAdapter) NotListed(symbol string) error {
	return fmt.Errorf("%w: %s does not list %s", apperrors.ErrDataUnavailable, b.Name, symbol)
}

// ParseDecimal safely parses a string to decimal
func (b *BaseAdapter) ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		b.Logger.Warn("failed to parse decimal", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

// ParseRequiredDecimal parses a field the record cannot do without.
// Empty or malformed values make the exchange unavailable for the fetch.
func (b *BaseAdapter) ParseRequiredDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, b.Unavailable(fmt.Errorf("malformed %s %q", field, s))
	}
	return d, nil
}

// ParseTimestamp safely parses a timestamp in milliseconds
func (b *BaseAdapter) ParseTimestamp(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ParseTimestampString parses a millisecond timestamp sent as a string
func (b *BaseAdapter) ParseTimestampString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		b.Logger.Warn("failed to parse timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return b.ParseTimestamp(ms)
}

// MidPrice returns (bid+ask)/2, or zero when either side is missing
func MidPrice(bid, ask decimal.Decimal) decimal.Decimal {
	if !bid.IsPositive() || !ask.IsPositive() {
		return decimal.Zero
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}
