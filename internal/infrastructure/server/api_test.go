package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"
	"arb_monitor/internal/trading/fx"
	"arb_monitor/internal/trading/monitor"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/liveserver"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(msg string, fields ...interface{})               {}
func (m *MockLogger) Info(msg string, fields ...interface{})                {}
func (m *MockLogger) Warn(msg string, fields ...interface{})                {}
func (m *MockLogger) Error(msg string, fields ...interface{})               {}
func (m *MockLogger) Fatal(msg string, fields ...interface{})               {}
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

type failingCalculator struct{ err error }

func (f failingCalculator) Calculate(context.Context, core.FundingRequest) (*core.FundingCalculation, error) {
	return nil, f.err
}

func opp(rank int, symbol, long, short, apr string) core.FundingOpportunity {
	return core.FundingOpportunity{
		Rank:          rank,
		Symbol:        symbol,
		LongExchange:  long,
		ShortExchange: short,
		EstimatedAPR:  decimal.RequireFromString(apr),
	}
}

func fundingRate(exchange, rate string) core.FundingRate {
	return core.FundingRate{
		Exchange:      exchange,
		Symbol:        "BTC/USDT",
		Rate:          decimal.RequireFromString(rate),
		IntervalHours: decimal.NewFromInt(8),
		MarkPrice:     decimal.NewFromInt(50000),
	}
}

type testAPI struct {
	funding *monitor.SnapshotCell
	price   *monitor.SnapshotCell
	fx      *fx.Service
	ts      *httptest.Server
}

func newTestAPI(t *testing.T, mutate func(*APIConfig)) *testAPI {
	t.Helper()
	logger := &MockLogger{}
	ta := &testAPI{
		funding: monitor.NewSnapshotCell(),
		price:   monitor.NewSnapshotCell(),
		fx:      fx.NewService(nil, decimal.NewFromInt(1300), time.Minute, logger),
	}

	cfg := APIConfig{
		Name:       "arb_monitor",
		Version:    "test",
		Symbols:    []string{"BTC/USDT", "ETH/USDT"},
		Exchanges:  []string{"binance", "bybit", "upbit"},
		Fees:       arbitrage.DefaultFeeTable(),
		Funding:    ta.funding,
		Price:      ta.price,
		Calculator: arbitrage.NewCalculator(monitor.NewSnapshotRateSource(ta.funding), logger),
		FX:         ta.fx,
		PoolStats:  func() map[string]interface{} { return map[string]interface{}{"name": "test"} },
		Defaults: Defaults{
			PositionSize: decimal.NewFromInt(10000),
			Leverage:     decimal.NewFromInt(1),
			HoldingHours: decimal.NewFromInt(24),
			ResultLimit:  20,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	hub := liveserver.NewHub(logger)
	srv := liveserver.NewServer(hub, logger, []string{"*"})
	NewAPI(cfg, logger).Register(srv)

	ta.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(ta.ts.Close)
	return ta
}

func (ta *testAPI) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(ta.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ta *testAPI) post(t *testing.T, path, body string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(ta.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_OpportunitiesBeforeFirstSnapshot(t *testing.T) {
	ta := newTestAPI(t, nil)

	var resp opportunitiesResponse
	assert.Equal(t, http.StatusOK, ta.get(t, "/api/funding/opportunities", &resp))
	assert.Empty(t, resp.Opportunities)
	assert.Equal(t, 0, resp.Total)
	assert.Equal(t, uint64(0), resp.Sequence)
}

func TestAPI_OpportunitiesFilters(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.funding.Store(&core.Snapshot{
		Kind:     core.SnapshotFunding,
		Sequence: 7,
		Opportunities: []core.FundingOpportunity{
			opp(1, "BTC/USDT", "binance", "bybit", "30"),
			opp(2, "ETH/USDT", "okx", "gate", "20"),
			opp(3, "BTC/USDT", "okx", "bybit", "10"),
		},
		FailedExchanges: []string{"hyperliquid"},
	})

	tests := []struct {
		name    string
		query   string
		total   int
		symbols []string
	}{
		{"all", "", 3, []string{"BTC/USDT", "ETH/USDT", "BTC/USDT"}},
		{"symbol", "?symbol=btc-usdt", 2, []string{"BTC/USDT", "BTC/USDT"}},
		{"min apr", "?min_apr=15", 2, []string{"BTC/USDT", "ETH/USDT"}},
		{"one per symbol", "?one_per_symbol=true", 2, []string{"BTC/USDT", "ETH/USDT"}},
		{"limit", "?limit=1", 3, []string{"BTC/USDT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp opportunitiesResponse
			require.Equal(t, http.StatusOK, ta.get(t, "/api/funding/opportunities"+tt.query, &resp))

			assert.Equal(t, tt.total, resp.Total)
			assert.Equal(t, uint64(7), resp.Sequence)
			assert.Equal(t, []string{"hyperliquid"}, resp.FailedExchanges)

			var symbols []string
			for _, o := range resp.Opportunities {
				symbols = append(symbols, o.Symbol)
			}
			assert.Equal(t, tt.symbols, symbols)
		})
	}
}

func TestAPI_OpportunitiesBadParams(t *testing.T) {
	ta := newTestAPI(t, nil)

	for _, q := range []string{"?limit=abc", "?limit=-1", "?one_per_symbol=maybe", "?min_apr=x"} {
		var resp errorResponse
		assert.Equal(t, http.StatusBadRequest, ta.get(t, "/api/funding/opportunities"+q, &resp), q)
		assert.Contains(t, resp.Error, "invalid", q)
	}
}

func TestAPI_Calculate(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.funding.Store(&core.Snapshot{
		Kind: core.SnapshotFunding,
		Rates: map[string]map[string]core.FundingRate{
			"BTC/USDT": {
				"binance": fundingRate("binance", "0.0001"),
				"bybit":   fundingRate("bybit", "0.0003"),
			},
		},
	})

	var calc core.FundingCalculation
	status := ta.post(t, "/api/funding/calculate",
		`{"symbol":"btc/usdt","long_exchange":"Binance","short_exchange":"bybit"}`, &calc)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "BTC/USDT", calc.Symbol)
	assert.True(t, calc.FundingSpread.Equal(decimal.RequireFromString("0.0002")))
	assert.Equal(t, int64(3), calc.TotalFundingCount)
	assert.True(t, calc.EstimatedTotalProfit.Equal(decimal.NewFromInt(6)), calc.EstimatedTotalProfit.String())
	assert.True(t, calc.PositionSize.Equal(decimal.NewFromInt(10000)))
}

func TestAPI_CalculateErrors(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.funding.Store(&core.Snapshot{
		Kind: core.SnapshotFunding,
		Rates: map[string]map[string]core.FundingRate{
			"BTC/USDT": {"binance": fundingRate("binance", "0.0001")},
		},
	})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"symbol":`, http.StatusBadRequest},
		{"same exchange", `{"symbol":"BTC/USDT","long_exchange":"binance","short_exchange":"binance"}`, http.StatusBadRequest},
		{"negative size", `{"symbol":"BTC/USDT","long_exchange":"binance","short_exchange":"bybit","position_size":-5}`, http.StatusBadRequest},
		{"missing rate", `{"symbol":"BTC/USDT","long_exchange":"binance","short_exchange":"bybit"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			assert.Equal(t, tt.status, ta.post(t, "/api/funding/calculate", tt.body, &resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestAPI_CalculateUpstreamFailure(t *testing.T) {
	ta := newTestAPI(t, func(cfg *APIConfig) {
		cfg.Calculator = failingCalculator{err: fmt.Errorf("%w: okx: timeout", apperrors.ErrExchangeUnavailable)}
	})

	var resp errorResponse
	assert.Equal(t, http.StatusBadGateway, ta.post(t, "/api/funding/calculate",
		`{"symbol":"BTC/USDT","long_exchange":"okx","short_exchange":"bybit"}`, &resp))
}

func TestAPI_Spreads(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.price.Store(&core.Snapshot{
		Kind:     core.SnapshotPrice,
		Sequence: 3,
		Spreads: []core.SpreadResult{
			{Symbol: "BTC/USDT", BuyExchange: "okx", SellExchange: "bybit", IsProfitable: true},
			{Symbol: "ETH/USDT", BuyExchange: "gate", SellExchange: "okx", IsProfitable: true},
			{Symbol: "BTC/USDT", BuyExchange: "bybit", SellExchange: "okx"},
		},
		AvgPremium: decimal.NewFromInt(2),
	})

	var all spreadsResponse
	require.Equal(t, http.StatusOK, ta.get(t, "/api/price/spreads", &all))
	assert.Len(t, all.Spreads, 3)
	assert.True(t, all.AvgPremium.Equal(decimal.NewFromInt(2)))

	var filtered spreadsResponse
	require.Equal(t, http.StatusOK, ta.get(t, "/api/price/spreads?symbol=BTC/USDT&profitable_only=true", &filtered))
	require.Len(t, filtered.Spreads, 1)
	assert.Equal(t, "okx", filtered.Spreads[0].BuyExchange)

	var limited spreadsResponse
	require.Equal(t, http.StatusOK, ta.get(t, "/api/price/spreads?limit=2", &limited))
	assert.Len(t, limited.Spreads, 2)
	assert.Equal(t, 3, limited.Total)
}

func TestAPI_Premiums(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.price.Store(&core.Snapshot{
		Kind: core.SnapshotPrice,
		Premiums: []core.PremiumQuote{{
			Symbol:            "BTC/USDT",
			LocalExchange:     "upbit",
			ReferenceExchange: "binance",
			PremiumPercent:    decimal.NewFromInt(3),
		}},
		AvgPremium: decimal.NewFromInt(3),
	})

	var resp premiumsResponse
	require.Equal(t, http.StatusOK, ta.get(t, "/api/price/premiums", &resp))
	require.Len(t, resp.Premiums, 1)
	assert.Equal(t, "upbit", resp.Premiums[0].LocalExchange)
	require.NotNil(t, resp.Rate)
	assert.True(t, resp.Rate.Rate.Equal(decimal.NewFromInt(1300)))
}

func TestAPI_ExchangeRate(t *testing.T) {
	ta := newTestAPI(t, nil)

	var quote fx.Quote
	require.Equal(t, http.StatusOK, ta.get(t, "/exchange-rate", &quote))
	assert.Equal(t, fx.SourceDefault, quote.Source)

	require.Equal(t, http.StatusOK, ta.post(t, "/exchange-rate", `{"rate":"1385.5"}`, &quote))
	assert.Equal(t, fx.SourceManual, quote.Source)
	assert.True(t, ta.fx.Rate().Equal(decimal.RequireFromString("1385.5")))

	var errResp errorResponse
	assert.Equal(t, http.StatusBadRequest, ta.post(t, "/exchange-rate", `{"rate":0}`, &errResp))
	assert.True(t, ta.fx.Rate().Equal(decimal.RequireFromString("1385.5")))
}

func TestAPI_ExchangeRateDisabled(t *testing.T) {
	ta := newTestAPI(t, func(cfg *APIConfig) { cfg.FX = nil })

	assert.Equal(t, http.StatusNotFound, ta.get(t, "/exchange-rate", nil))
	assert.Equal(t, http.StatusNotFound, ta.post(t, "/exchange-rate", `{"rate":1}`, nil))
}

func TestAPI_IndexAndCatalog(t *testing.T) {
	ta := newTestAPI(t, nil)

	var index struct {
		Name      string                 `json:"name"`
		Endpoints []string               `json:"endpoints"`
		FetchPool map[string]interface{} `json:"fetch_pool"`
	}
	require.Equal(t, http.StatusOK, ta.get(t, "/", &index))
	assert.Equal(t, "arb_monitor", index.Name)
	assert.Contains(t, index.Endpoints, "POST /api/funding/calculate")
	assert.Contains(t, index.Endpoints, "GET /ws")
	assert.Equal(t, "test", index.FetchPool["name"])

	var symbols struct {
		Symbols []string `json:"symbols"`
		Count   int      `json:"count"`
	}
	require.Equal(t, http.StatusOK, ta.get(t, "/symbols", &symbols))
	assert.Equal(t, 2, symbols.Count)

	var exchanges struct {
		Exchanges []exchangeInfo `json:"exchanges"`
	}
	require.Equal(t, http.StatusOK, ta.get(t, "/exchanges", &exchanges))
	require.Len(t, exchanges.Exchanges, 3)
	assert.True(t, exchanges.Exchanges[0].HasFunding)
	assert.False(t, exchanges.Exchanges[2].HasFunding, "upbit is spot only")

	var known struct {
		Exchanges []exchangeInfo `json:"exchanges"`
	}
	require.Equal(t, http.StatusOK, ta.get(t, "/exchanges?all=true", &known))
	assert.Len(t, known.Exchanges, len(arbitrage.DefaultFeeTable().Exchanges()))

	assert.Equal(t, http.StatusNotFound, ta.get(t, "/nope", nil))
}
