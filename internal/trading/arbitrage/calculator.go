package arbitrage

import (
	"context"
	"fmt"
	"strings"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// RateSource supplies the funding rate of one (exchange, symbol) pair.
// Missing data is reported as apperrors.ErrDataUnavailable.
type RateSource interface {
	FundingRate(ctx context.Context, exchange, symbol string) (*core.FundingRate, error)
}

// Calculator answers on-demand funding arbitrage queries
type Calculator struct {
	source RateSource
	logger core.ILogger
}

// NewCalculator creates a calculator reading rates from source
func NewCalculator(source RateSource, logger core.ILogger) *Calculator {
	return &Calculator{
		source: source,
		logger: logger.WithField("component", "funding_calculator"),
	}
}

// Calculate validates the request, fetches both legs and evaluates the position
func (c *Calculator) Calculate(ctx context.Context, req core.FundingRequest) (*core.FundingCalculation, error) {
	req.Symbol = core.NormalizeSymbol(req.Symbol)
	req.LongExchange = strings.ToLower(strings.TrimSpace(req.LongExchange))
	req.ShortExchange = strings.ToLower(strings.TrimSpace(req.ShortExchange))

	if req.LongExchange != "" && req.LongExchange == req.ShortExchange {
		return nil, apperrors.ErrInvalidPair
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", apperrors.ErrInvalidRequest)
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	var long, short *core.FundingRate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		long, err = c.source.FundingRate(gctx, req.LongExchange, req.Symbol)
		return err
	})
	g.Go(func() error {
		var err error
		short, err = c.source.FundingRate(gctx, req.ShortExchange, req.Symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Debug("Funding rate lookup failed",
			"symbol", req.Symbol,
			"long", req.LongExchange,
			"short", req.ShortExchange,
			"error", err)
		return nil, err
	}

	return EvaluateFunding(req, *long, *short)
}
