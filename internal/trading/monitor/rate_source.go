package monitor

import (
	"context"
	"fmt"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"
	apperrors "arb_monitor/pkg/errors"
)

// SnapshotRateSource answers rate lookups from the latest funding snapshot
type SnapshotRateSource struct {
	cell *SnapshotCell
}

// NewSnapshotRateSource creates a source backed by a funding snapshot cell
func NewSnapshotRateSource(cell *SnapshotCell) *SnapshotRateSource {
	return &SnapshotRateSource{cell: cell}
}

// FundingRate implements arbitrage.RateSource
func (s *SnapshotRateSource) FundingRate(_ context.Context, exchange, symbol string) (*core.FundingRate, error) {
	rate, ok := s.cell.Load().Rate(exchange, symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no %s rate for %s in snapshot", apperrors.ErrDataUnavailable, exchange, symbol)
	}
	return &rate, nil
}

// LiveRateSource fetches rates from the adapters on every lookup
type LiveRateSource struct {
	exchanges map[string]core.IMarketData
	fees      *arbitrage.FeeTable
}

// NewLiveRateSource creates a source that queries the given adapters directly
func NewLiveRateSource(exchanges []core.IMarketData, fees *arbitrage.FeeTable) *LiveRateSource {
	byName := make(map[string]core.IMarketData, len(exchanges))
	for _, ex := range exchanges {
		byName[ex.Name()] = ex
	}
	return &LiveRateSource{exchanges: byName, fees: fees}
}

// FundingRate implements arbitrage.RateSource
func (s *LiveRateSource) FundingRate(ctx context.Context, exchange, symbol string) (*core.FundingRate, error) {
	ex, ok := s.exchanges[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: exchange %s is not active", apperrors.ErrDataUnavailable, exchange)
	}
	rate, err := ex.FetchFundingRate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	filled := withInterval(*rate, s.fees)
	return &filled, nil
}
