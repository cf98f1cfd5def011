package arbitrage

import (
	"fmt"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

var hoursPerDay = decimal.NewFromInt(24)

// BuildOpportunity computes the hourly spread and APR of going long on one venue and short on another
func BuildOpportunity(long, short core.FundingRate) (core.FundingOpportunity, error) {
	if long.Exchange == short.Exchange {
		return core.FundingOpportunity{}, apperrors.ErrInvalidPair
	}

	longHourly, err := Normalize(long.Rate, long.IntervalHours)
	if err != nil {
		return core.FundingOpportunity{}, fmt.Errorf("%s: %w", long.Exchange, err)
	}
	shortHourly, err := Normalize(short.Rate, short.IntervalHours)
	if err != nil {
		return core.FundingOpportunity{}, fmt.Errorf("%s: %w", short.Exchange, err)
	}

	spreadHourly := ComputeSpread(longHourly, shortHourly)
	settlement := decimal.Min(long.IntervalHours, short.IntervalHours)

	return core.FundingOpportunity{
		Symbol:              long.Symbol,
		LongExchange:        long.Exchange,
		ShortExchange:       short.Exchange,
		LongFundingRate:     long.Rate,
		ShortFundingRate:    short.Rate,
		LongIntervalHours:   long.IntervalHours,
		ShortIntervalHours:  short.IntervalHours,
		LongRateHourly:      longHourly,
		ShortRateHourly:     shortHourly,
		FundingSpread:       spreadHourly.Mul(settlement),
		FundingSpreadHourly: spreadHourly,
		EstimatedAPR:        HourlyAPR(spreadHourly),
		LongMarkPrice:       long.MarkPrice,
		ShortMarkPrice:      short.MarkPrice,
		PriceSpreadPercent:  markSpreadPercent(long.MarkPrice, short.MarkPrice),
	}, nil
}

// ValidateRequest checks the sizing inputs of a funding query
func ValidateRequest(req core.FundingRequest) error {
	switch {
	case req.LongExchange == "" || req.ShortExchange == "":
		return fmt.Errorf("%w: long_exchange and short_exchange are required", apperrors.ErrInvalidRequest)
	case !req.PositionSize.IsPositive():
		return fmt.Errorf("%w: position_size must be positive", apperrors.ErrInvalidRequest)
	case !req.Leverage.IsPositive():
		return fmt.Errorf("%w: leverage must be positive", apperrors.ErrInvalidRequest)
	case !req.HoldingHours.IsPositive():
		return fmt.Errorf("%w: holding_hours must be positive", apperrors.ErrInvalidRequest)
	}
	return nil
}

// EvaluateFunding sizes a long/short funding position over the requested holding period
func EvaluateFunding(req core.FundingRequest, long, short core.FundingRate) (*core.FundingCalculation, error) {
	if req.LongExchange == req.ShortExchange {
		return nil, apperrors.ErrInvalidPair
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	opp, err := BuildOpportunity(long, short)
	if err != nil {
		return nil, err
	}

	settlement := decimal.Min(long.IntervalHours, short.IntervalHours)
	count := req.HoldingHours.Div(settlement).Floor()
	perFunding := req.PositionSize.Mul(opp.FundingSpread)
	total := perFunding.Mul(count)
	margin := req.PositionSize.Div(req.Leverage)

	ts := long.Timestamp
	if short.Timestamp.After(ts) {
		ts = short.Timestamp
	}

	return &core.FundingCalculation{
		Symbol:                 req.Symbol,
		LongExchange:           req.LongExchange,
		ShortExchange:          req.ShortExchange,
		LongFundingRate:        opp.LongFundingRate,
		ShortFundingRate:       opp.ShortFundingRate,
		LongIntervalHours:      opp.LongIntervalHours,
		ShortIntervalHours:     opp.ShortIntervalHours,
		LongRateHourly:         opp.LongRateHourly,
		ShortRateHourly:        opp.ShortRateHourly,
		FundingSpreadHourly:    opp.FundingSpreadHourly,
		FundingSpread:          opp.FundingSpread,
		SettlementHours:        settlement,
		EstimatedAPR:           opp.EstimatedAPR,
		LongMarkPrice:          opp.LongMarkPrice,
		ShortMarkPrice:         opp.ShortMarkPrice,
		PriceSpreadPercent:     opp.PriceSpreadPercent,
		PerFundingProfit:       perFunding,
		TotalFundingCount:      count.IntPart(),
		EstimatedTotalProfit:   total,
		EstimatedProfitPercent: tradingutils.Percent(total, margin.Mul(decimal.NewFromInt(2))),
		DailyProfit:            req.PositionSize.Mul(opp.FundingSpreadHourly).Mul(hoursPerDay),
		RequiredMargin:         margin,
		PositionSize:           req.PositionSize,
		Leverage:               req.Leverage,
		HoldingHours:           req.HoldingHours,
		Timestamp:              ts,
	}, nil
}

// markSpreadPercent is |a-b| over the smaller positive mark, zero when either is missing
func markSpreadPercent(a, b decimal.Decimal) decimal.Decimal {
	if !a.IsPositive() || !b.IsPositive() {
		return decimal.Zero
	}
	base, _ := tradingutils.MinPositive(a, b)
	return tradingutils.Percent(a.Sub(b).Abs(), base)
}
