package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"arb_monitor/internal/config"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, handler http.HandlerFunc) *BybitExchange {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewBybitExchange(config.ExchangeConfig{BaseURL: server.URL}, logging.NewNopLogger())
}

func TestBybit_FetchFundingRate(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"category": "linear",
				"list": [{
					"symbol": "BTCUSDT",
					"lastPrice": "50010.5",
					"markPrice": "50012.1",
					"indexPrice": "50000.9",
					"bid1Price": "50010",
					"ask1Price": "50011",
					"fundingRate": "0.0001",
					"nextFundingTime": "1700028800000",
					"fundingIntervalHour": "8"
				}]
			},
			"time": 1700000000000
		}`))
	})

	rate, err := e.FetchFundingRate(context.Background(), "btc-usdt")
	require.NoError(t, err)
	assert.Equal(t, "bybit", rate.Exchange)
	assert.Equal(t, "BTC/USDT", rate.Symbol)
	assert.Equal(t, "0.0001", rate.Rate.String())
	assert.Equal(t, "8", rate.IntervalHours.String())
	assert.Equal(t, "50012.1", rate.MarkPrice.String())
	assert.Equal(t, int64(1700028800000), rate.NextFundingTime.UnixMilli())
}

func TestBybit_FetchTicker(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`{"retCode":0,"result":{"category":"spot","list":[{"symbol":"ETHUSDT","lastPrice":"3000","bid1Price":"2999.5","ask1Price":"3000.5"}]},"time":1700000000000}`))
	})

	q, err := e.FetchTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "2999.5", q.Bid.String())
	assert.Equal(t, "3000.5", q.Ask.String())
	assert.Equal(t, "3000", q.Last.String())
}

func TestBybit_UnknownSymbol(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{},"time":1700000000000}`))
	})

	_, err := e.FetchFundingRate(context.Background(), "FOO/USDT")
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}

func TestBybit_EmptyList(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":0,"result":{"category":"linear","list":[]},"time":1700000000000}`))
	})

	_, err := e.FetchTicker(context.Background(), "FOO/USDT")
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}

func TestBybit_RateLimited(t *testing.T) {
	e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10006,"retMsg":"Too many visits!","result":{},"time":1700000000000}`))
	})

	_, err := e.FetchTicker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrRateLimitExceeded)
}

func TestBybit_MalformedFundingRate(t *testing.T) {
	tests := []struct {
		name    string
		item    string
		wantErr string
	}{
		{"empty rate", `{"symbol":"BTCUSDT","markPrice":"50012.1","fundingRate":"","fundingIntervalHour":"8"}`, "malformed fundingRate"},
		{"garbage rate", `{"symbol":"BTCUSDT","markPrice":"50012.1","fundingRate":"x","fundingIntervalHour":"8"}`, "malformed fundingRate"},
		{"missing mark", `{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingIntervalHour":"8"}`, "malformed markPrice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"retCode":0,"result":{"category":"linear","list":[` + tt.item + `]},"time":1700000000000}`))
			})

			_, err := e.FetchFundingRate(context.Background(), "BTC/USDT")
			assert.ErrorIs(t, err, apperrors.ErrExchangeUnavailable)
			assert.NotErrorIs(t, err, apperrors.ErrDataUnavailable)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
