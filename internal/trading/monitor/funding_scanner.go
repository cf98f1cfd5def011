package monitor

import (
	"context"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"
	"arb_monitor/pkg/telemetry"
)

// FundingScanner collects funding rates and ranks cross-exchange opportunities
type FundingScanner struct {
	collector *Collector
	symbols   []string
	ranker    *arbitrage.Ranker
	fees      *arbitrage.FeeTable
	logger    core.ILogger
	metrics   *telemetry.MetricsHolder
}

// NewFundingScanner creates a funding scanner
func NewFundingScanner(collector *Collector, symbols []string, ranker *arbitrage.Ranker, fees *arbitrage.FeeTable, logger core.ILogger) *FundingScanner {
	return &FundingScanner{
		collector: collector,
		symbols:   symbols,
		ranker:    ranker,
		fees:      fees,
		logger:    logger.WithField("component", "funding_scanner"),
		metrics:   telemetry.GetGlobalMetrics(),
	}
}

// Kind implements Scanner
func (s *FundingScanner) Kind() string {
	return core.SnapshotFunding
}

// Scan implements Scanner
func (s *FundingScanner) Scan(ctx context.Context) (*core.Snapshot, error) {
	col, err := s.collector.CollectFunding(ctx, s.symbols)
	if err != nil {
		return nil, err
	}

	for symbol, byExchange := range col.Records {
		for exchange, rate := range byExchange {
			byExchange[exchange] = withInterval(rate, s.fees)
		}
		col.Records[symbol] = byExchange
	}

	ranking := s.ranker.Rank(col.Records)
	for _, ex := range ranking.Excluded {
		s.logger.Warn("Excluded funding rate", "symbol", ex.Symbol, "exchange", ex.Exchange, "reason", ex.Reason)
	}

	for _, best := range ranking.BestPerSymbol(0) {
		apr, _ := best.EstimatedAPR.Float64()
		s.metrics.SetBestAPR(best.Symbol, apr)
	}

	s.logger.Debug("Funding scan ranked",
		"records", col.Count,
		"opportunities", ranking.Len(),
		"excluded", len(ranking.Excluded))

	return &core.Snapshot{
		Kind:            core.SnapshotFunding,
		Timestamp:       time.Now().UTC(),
		Opportunities:   ranking.Opportunities,
		Rates:           col.Records,
		FailedExchanges: col.Failed,
	}, nil
}

// withInterval fills in the exchange's configured funding interval when the venue did not report one
func withInterval(rate core.FundingRate, fees *arbitrage.FeeTable) core.FundingRate {
	if rate.IntervalHours.IsZero() && fees != nil {
		rate.IntervalHours = fees.IntervalHours(rate.Exchange)
	}
	return rate
}
