package server

import (
	"context"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"
	"arb_monitor/internal/trading/monitor"
	"arb_monitor/pkg/liveserver"

	"github.com/shopspring/decimal"
)

// Broadcaster fans a message out to every stream client
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{}, total int)
}

// ArbitragePayload is the data of an arbitrage_update message
type ArbitragePayload struct {
	Spreads    []core.SpreadResult `json:"spreads"`
	Premiums   []core.PremiumQuote `json:"premiums"`
	AvgPremium decimal.Decimal     `json:"avg_premium"`
	Sequence   uint64              `json:"sequence"`
}

// StreamPublisher pushes every newly published snapshot to the stream
type StreamPublisher struct {
	funding        *monitor.SnapshotCell
	price          *monitor.SnapshotCell
	out            Broadcaster
	health         liveserver.HealthFunc
	healthInterval time.Duration
	resultLimit    int
	logger         core.ILogger
}

// NewStreamPublisher creates a publisher; either cell may be nil
func NewStreamPublisher(funding, price *monitor.SnapshotCell, out Broadcaster, logger core.ILogger) *StreamPublisher {
	return &StreamPublisher{
		funding:     funding,
		price:       price,
		out:         out,
		resultLimit: defaultResultLimit,
		logger:      logger.WithField("component", "stream_publisher"),
	}
}

// SetResultLimit caps the opportunities sent per funding update; total still counts all of them
func (p *StreamPublisher) SetResultLimit(n int) {
	if n > 0 {
		p.resultLimit = n
	}
}

// SetHealth enables periodic health messages
func (p *StreamPublisher) SetHealth(fn liveserver.HealthFunc, interval time.Duration) {
	p.health = fn
	p.healthInterval = interval
}

// Run publishes until ctx is done
func (p *StreamPublisher) Run(ctx context.Context) error {
	fundingCh, unsubFunding := subscribe(p.funding)
	defer unsubFunding()
	priceCh, unsubPrice := subscribe(p.price)
	defer unsubPrice()

	var healthC <-chan time.Time
	if p.health != nil && p.healthInterval > 0 {
		ticker := time.NewTicker(p.healthInterval)
		defer ticker.Stop()
		healthC = ticker.C
	}

	// Late starters still send what is already there
	p.publishFunding()
	p.publishPrice()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fundingCh:
			p.publishFunding()
		case <-priceCh:
			p.publishPrice()
		case <-healthC:
			p.out.BroadcastMessage(liveserver.TypeHealth, p.health(), 0)
		}
	}
}

func subscribe(cell *monitor.SnapshotCell) (<-chan struct{}, func()) {
	if cell == nil {
		return nil, func() {}
	}
	return cell.Subscribe()
}

func (p *StreamPublisher) publishFunding() {
	if p.funding == nil {
		return
	}
	snap := p.funding.Load()
	if snap == nil {
		return
	}
	opps := arbitrage.TopOpportunities(snap.Opportunities, p.resultLimit)
	p.out.BroadcastMessage(liveserver.TypeFundingUpdate, opps, snap.Total())
	p.logger.Debug("Published funding update", "sequence", snap.Sequence, "total", snap.Total())
}

func (p *StreamPublisher) publishPrice() {
	if p.price == nil {
		return
	}
	snap := p.price.Load()
	if snap == nil {
		return
	}
	payload := ArbitragePayload{
		Spreads:    snap.Spreads,
		Premiums:   snap.Premiums,
		AvgPremium: snap.AvgPremium,
		Sequence:   snap.Sequence,
	}
	if payload.Spreads == nil {
		payload.Spreads = []core.SpreadResult{}
	}
	if payload.Premiums == nil {
		payload.Premiums = []core.PremiumQuote{}
	}
	p.out.BroadcastMessage(liveserver.TypeArbitrageUpdate, payload, snap.Total())
	p.logger.Debug("Published arbitrage update", "sequence", snap.Sequence, "spreads", len(snap.Spreads))
}
