package base

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"arb_monitor/internal/config"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestError(body []byte) error {
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	switch resp.Code {
	case "unknown_symbol":
		return apperrors.ErrInvalidSymbol
	case "slow_down":
		return apperrors.ErrRateLimitExceeded
	}
	return nil
}

func newTestAdapter(t *testing.T, status int, body string) *BaseAdapter {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	b := NewBaseAdapter("test", config.ExchangeConfig{BaseURL: server.URL}, "https://unused.invalid", logging.NewNopLogger())
	b.SetParseError(parseTestError)
	return b
}

func TestBaseAdapter_GetJSON(t *testing.T) {
	b := newTestAdapter(t, nethttp.StatusOK, `{"price":"42.5"}`)

	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, b.GetJSON(context.Background(), "/", nil, &out))
	assert.Equal(t, "42.5", b.ParseDecimal(out.Price).String())
	assert.Equal(t, "test", b.GetName())
}

func TestBaseAdapter_MapError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    []error
		wantNotIs error
	}{
		{
			name:      "unknown symbol is data unavailable",
			status:    nethttp.StatusBadRequest,
			body:      `{"code":"unknown_symbol"}`,
			wantIs:    []error{apperrors.ErrDataUnavailable, apperrors.ErrInvalidSymbol},
			wantNotIs: apperrors.ErrExchangeUnavailable,
		},
		{
			name:   "throttling is an exchange failure",
			status: nethttp.StatusBadRequest,
			body:   `{"code":"slow_down"}`,
			wantIs: []error{apperrors.ErrExchangeUnavailable, apperrors.ErrRateLimitExceeded},
		},
		{
			name:   "unparsed body keeps the api error",
			status: nethttp.StatusForbidden,
			body:   `blocked`,
			wantIs: []error{apperrors.ErrExchangeUnavailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestAdapter(t, tt.status, tt.body)
			var out map[string]any
			err := b.GetJSON(context.Background(), "/", nil, &out)
			require.Error(t, err)
			for _, want := range tt.wantIs {
				assert.ErrorIs(t, err, want)
			}
			if tt.wantNotIs != nil {
				assert.False(t, errors.Is(err, tt.wantNotIs))
			}
		})
	}
}

func TestBaseAdapter_ContextErrorsPassThrough(t *testing.T) {
	b := newTestAdapter(t, nethttp.StatusOK, `{}`)
	assert.ErrorIs(t, b.MapError(context.Canceled), context.Canceled)
	assert.NoError(t, b.MapError(nil))
}

func TestBaseAdapter_ParseHelpers(t *testing.T) {
	b := newTestAdapter(t, nethttp.StatusOK, `{}`)

	assert.True(t, b.ParseDecimal("").IsZero())
	assert.True(t, b.ParseDecimal("abc").IsZero())
	assert.True(t, b.ParseTimestamp(0).IsZero())
	assert.Equal(t, int64(1700000000000), b.ParseTimestampString("1700000000000").UnixMilli())
	assert.True(t, b.ParseTimestampString("x").IsZero())

	assert.Equal(t, "101", MidPrice(decimal.NewFromInt(100), decimal.NewFromInt(102)).String())
	assert.True(t, MidPrice(decimal.Zero, decimal.NewFromInt(102)).IsZero())
}

func TestBaseAdapter_ParseRequiredDecimal(t *testing.T) {
	b := newTestAdapter(t, nethttp.StatusOK, `{}`)

	d, err := b.ParseRequiredDecimal("fundingRate", " -0.00005 ")
	require.NoError(t, err)
	assert.Equal(t, "-0.00005", d.String())

	for _, raw := range []string{"", "  ", "oops"} {
		_, err := b.ParseRequiredDecimal("fundingRate", raw)
		assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable, "value %q", raw)
		assert.NotErrorIs(t, err, apperrors.ErrDataUnavailable, "value %q", raw)
		assert.ErrorContains(t, err, "malformed fundingRate")
	}
}
