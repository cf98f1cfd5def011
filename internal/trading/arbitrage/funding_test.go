package arbitrage

import (
	"testing"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundingRate(exchange, rate, interval, mark string) core.FundingRate {
	return core.FundingRate{
		Exchange:      exchange,
		Symbol:        "BTC/USDT",
		Rate:          dec(rate),
		IntervalHours: dec(interval),
		MarkPrice:     dec(mark),
		Timestamp:     time.Unix(1700000000, 0),
	}
}

func request(long, short string) core.FundingRequest {
	return core.FundingRequest{
		Symbol:        "BTC/USDT",
		LongExchange:  long,
		ShortExchange: short,
		PositionSize:  dec("10000"),
		Leverage:      dec("2"),
		HoldingHours:  dec("24"),
	}
}

func TestBuildOpportunity_Example(t *testing.T) {
	opp, err := BuildOpportunity(
		fundingRate("a", "-0.0001", "8", "50000"),
		fundingRate("b", "0.0002", "8", "50100"),
	)
	require.NoError(t, err)

	assert.True(t, opp.LongRateHourly.Equal(dec("-0.0000125")))
	assert.True(t, opp.ShortRateHourly.Equal(dec("0.000025")))
	assert.True(t, opp.FundingSpreadHourly.Equal(dec("0.0000375")))
	assert.True(t, opp.EstimatedAPR.Equal(dec("32.85")), opp.EstimatedAPR.String())
	assert.True(t, opp.FundingSpread.Equal(dec("0.0003")))
	assert.True(t, opp.PriceSpreadPercent.Equal(dec("0.2")), opp.PriceSpreadPercent.String())
}

func TestBuildOpportunity_NegativeAPRIsKept(t *testing.T) {
	opp, err := BuildOpportunity(
		fundingRate("a", "0.0002", "8", "0"),
		fundingRate("b", "-0.0001", "8", "0"),
	)
	require.NoError(t, err)
	assert.True(t, opp.EstimatedAPR.Equal(dec("-32.85")))
	assert.True(t, opp.PriceSpreadPercent.IsZero())
}

func TestEvaluateFunding_Example(t *testing.T) {
	calc, err := EvaluateFunding(request("a", "b"),
		fundingRate("a", "-0.0001", "8", "50000"),
		fundingRate("b", "0.0002", "8", "50000"),
	)
	require.NoError(t, err)

	assert.True(t, calc.SettlementHours.Equal(dec("8")))
	assert.Equal(t, int64(3), calc.TotalFundingCount)
	assert.True(t, calc.PerFundingProfit.Equal(dec("3")), calc.PerFundingProfit.String())
	assert.True(t, calc.EstimatedTotalProfit.Equal(dec("9")))
	assert.True(t, calc.RequiredMargin.Equal(dec("5000")))
	assert.True(t, calc.EstimatedProfitPercent.Equal(dec("0.09")), calc.EstimatedProfitPercent.String())
	assert.True(t, calc.DailyProfit.Equal(dec("9")))
	assert.True(t, calc.EstimatedAPR.Equal(dec("32.85")))
}

func TestEvaluateFunding_MixedIntervals(t *testing.T) {
	req := request("binance", "hyperliquid")
	req.HoldingHours = dec("5.5")

	calc, err := EvaluateFunding(req,
		fundingRate("binance", "0.0001", "8", "0"),
		fundingRate("hyperliquid", "0.00005", "1", "0"),
	)
	require.NoError(t, err)

	// hourly 0.0000125 vs 0.00005, settle every hour
	assert.True(t, calc.FundingSpreadHourly.Equal(dec("0.0000375")))
	assert.True(t, calc.SettlementHours.Equal(dec("1")))
	assert.Equal(t, int64(5), calc.TotalFundingCount)
	assert.True(t, calc.FundingSpread.Equal(dec("0.0000375")))
}

func TestEvaluateFunding_InvalidPairCheckedFirst(t *testing.T) {
	req := request("okx", "okx")
	req.Leverage = dec("0")

	_, err := EvaluateFunding(req, fundingRate("okx", "0.0001", "0", "0"), fundingRate("okx", "0.0001", "0", "0"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidPair)
}

func TestEvaluateFunding_Errors(t *testing.T) {
	good := fundingRate("a", "0.0001", "8", "0")
	other := fundingRate("b", "0.0001", "8", "0")

	tests := []struct {
		name   string
		mutate func(*core.FundingRequest)
		long   core.FundingRate
		want   error
	}{
		{"zero position", func(r *core.FundingRequest) { r.PositionSize = dec("0") }, good, apperrors.ErrInvalidRequest},
		{"negative leverage", func(r *core.FundingRequest) { r.Leverage = dec("-1") }, good, apperrors.ErrInvalidRequest},
		{"zero holding", func(r *core.FundingRequest) { r.HoldingHours = dec("0") }, good, apperrors.ErrInvalidRequest},
		{"bad interval", func(r *core.FundingRequest) {}, fundingRate("a", "0.0001", "0", "0"), apperrors.ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("a", "b")
			tt.mutate(&req)
			_, err := EvaluateFunding(req, tt.long, other)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
