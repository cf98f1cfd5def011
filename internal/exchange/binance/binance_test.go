package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"arb_monitor/internal/config"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/logging"
	"arb_monitor/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, handler http.HandlerFunc) *BinanceExchange {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e := NewBinanceExchange(config.ExchangeConfig{
		BaseURL:        server.URL,
		FuturesBaseURL: server.URL,
	}, logging.NewNopLogger())
	e.policy = retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return e
}

const fundingInfoBody = `[
	{"symbol":"ARBUSDT","adjustedFundingRateCap":"0.02","adjustedFundingRateFloor":"-0.02","fundingIntervalHours":4},
	{"symbol":"NEWUSDT","adjustedFundingRateCap":"0.02","adjustedFundingRateFloor":"-0.02","fundingIntervalHours":1}
]`

func premiumIndexBody(symbol, rate, mark string) string {
	return `{"symbol":"` + symbol + `","markPrice":"` + mark + `","indexPrice":"1.0","lastFundingRate":"` + rate + `","nextFundingTime":1700014400000,"time":1700000000000}`
}

func TestBinance_FetchFundingRate(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/fundingInfo" {
			_, _ = w.Write([]byte(fundingInfoBody))
			return
		}
		assert.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"markPrice": "50012.50000000",
			"indexPrice": "50001.23456789",
			"estimatedSettlePrice": "50005.00000000",
			"lastFundingRate": "0.00010000",
			"interestRate": "0.00010000",
			"nextFundingTime": 1700028800000,
			"time": 1700000000000
		}`))
	})

	rate, err := e.FetchFundingRate(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "binance", rate.Exchange)
	assert.Equal(t, "BTC/USDT", rate.Symbol)
	assert.Equal(t, "0.0001", rate.Rate.String())
	assert.True(t, rate.IntervalHours.IsZero(), "symbols missing from fundingInfo keep the configured default")
	assert.Equal(t, "50012.5", rate.MarkPrice.String())
	assert.Equal(t, int64(1700028800000), rate.NextFundingTime.UnixMilli())
	assert.Equal(t, int64(1700000000000), rate.Timestamp.UnixMilli())
}

func TestBinance_FetchTicker(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"2999.00","bidQty":"1.5","askPrice":"3001.00","askQty":"2.0"}`))
	})

	q, err := e.FetchTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "2999", q.Bid.String())
	assert.Equal(t, "3001", q.Ask.String())
	assert.Equal(t, "3000", q.Last.String())
}

func TestBinance_InvalidSymbol(t *testing.T) {
	var calls int32
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := e.FetchFundingRate(context.Background(), "FOO/USDT")
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrExchangeUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "api rejections are not retried")
}

func TestBinance_RateLimited(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	})

	_, err := e.FetchTicker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrRateLimitExceeded)
}

func TestBinance_FundingIntervalFromFundingInfo(t *testing.T) {
	var infoCalls int32
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/fundingInfo":
			atomic.AddInt32(&infoCalls, 1)
			_, _ = w.Write([]byte(fundingInfoBody))
		case "/fapi/v1/premiumIndex":
			_, _ = w.Write([]byte(premiumIndexBody(r.URL.Query().Get("symbol"), "0.0001", "1.2")))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	rate, err := e.FetchFundingRate(context.Background(), "ARB/USDT")
	require.NoError(t, err)
	assert.Equal(t, "4", rate.IntervalHours.String())
	assert.Equal(t, "0.000025", rate.Rate.Div(rate.IntervalHours).String())

	rate, err = e.FetchFundingRate(context.Background(), "NEW/USDT")
	require.NoError(t, err)
	assert.Equal(t, "1", rate.IntervalHours.String())

	rate, err = e.FetchFundingRate(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.True(t, rate.IntervalHours.IsZero())

	assert.Equal(t, int32(1), atomic.LoadInt32(&infoCalls), "intervals are cached across fetches")
}

func TestBinance_FundingInfoFailureKeepsRate(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/fundingInfo" {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(`{"code":-1000,"msg":"unknown"}`))
			return
		}
		_, _ = w.Write([]byte(premiumIndexBody("ARBUSDT", "0.0001", "1.2")))
	})

	rate, err := e.FetchFundingRate(context.Background(), "ARB/USDT")
	require.NoError(t, err)
	assert.Equal(t, "0.0001", rate.Rate.String())
	assert.True(t, rate.IntervalHours.IsZero())
}

func TestBinance_MalformedFundingRate(t *testing.T) {
	tests := []struct {
		name    string
		rate    string
		mark    string
		wantErr string
	}{
		{"empty rate", "", "1.2", "malformed lastFundingRate"},
		{"garbage rate", "abc", "1.2", "malformed lastFundingRate"},
		{"empty mark", "0.0001", "", "malformed markPrice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/fapi/v1/fundingInfo" {
					_, _ = w.Write([]byte(`[]`))
					return
				}
				_, _ = w.Write([]byte(premiumIndexBody("BTCUSDT", tt.rate, tt.mark)))
			})

			rate, err := e.FetchFundingRate(context.Background(), "BTC/USDT")
			assert.Nil(t, rate)
			assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBinance_MalformedBookTicker(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"","bidQty":"0","askPrice":"3001.00","askQty":"2.0"}`))
	})

	_, err := e.FetchTicker(context.Background(), "ETH/USDT")
	assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable)
}
