// Package fx keeps the USD/KRW conversion rate used to compare KRW venues
package fx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arb_monitor/internal/core"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/http"
	"arb_monitor/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Rate sources
const (
	SourceDefault = "default"
	SourceAPI     = "api"
	SourceManual  = "manual"
)

const latestPath = "/v6/latest/USD"

// Quote is the current conversion rate and where it came from
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type latestResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Service fetches USD/KRW periodically and keeps the last good value
type Service struct {
	client   *http.Client
	interval time.Duration
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	mu    sync.RWMutex
	quote Quote
}

// NewService creates a service seeded with defaultRate
func NewService(client *http.Client, defaultRate decimal.Decimal, interval time.Duration, logger core.ILogger) *Service {
	s := &Service{
		client:   client,
		interval: interval,
		logger:   logger.WithField("component", "fx"),
		metrics:  telemetry.GetGlobalMetrics(),
		quote:    Quote{Rate: defaultRate, Source: SourceDefault, UpdatedAt: time.Now().UTC()},
	}
	rate, _ := defaultRate.Float64()
	s.metrics.SetUSDKRWRate(rate)
	return s
}

// Rate returns the current USD/KRW rate
func (s *Service) Rate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quote.Rate
}

// Quote returns the current rate with its source
func (s *Service) Quote() Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quote
}

// Set overrides the rate manually until the next successful fetch
func (s *Service) Set(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive", apperrors.ErrInvalidRequest)
	}
	s.store(rate, SourceManual)
	s.logger.Info("USD/KRW rate set manually", "rate", rate.String())
	return nil
}

// Fetch queries the rate API once. On failure the previous rate is kept.
func (s *Service) Fetch(ctx context.Context) (decimal.Decimal, error) {
	var resp latestResponse
	if err := s.client.GetJSON(ctx, latestPath, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: fx: %w", apperrors.ErrExchangeUnavailable, err)
	}
	if resp.Result != "" && resp.Result != "success" {
		return decimal.Zero, fmt.Errorf("%w: fx: result %q", apperrors.ErrExchangeUnavailable, resp.Result)
	}

	krw, ok := resp.Rates[core.CurrencyKRW]
	if !ok || krw <= 0 {
		return decimal.Zero, fmt.Errorf("%w: fx: no KRW rate in response", apperrors.ErrDataUnavailable)
	}

	rate := decimal.NewFromFloat(krw)
	s.store(rate, SourceAPI)
	return rate, nil
}

func (s *Service) store(rate decimal.Decimal, source string) {
	s.mu.Lock()
	s.quote = Quote{Rate: rate, Source: source, UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()

	f, _ := rate.Float64()
	s.metrics.SetUSDKRWRate(f)
}

// Run fetches immediately and then on every interval until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	rate, err := s.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("USD/KRW fetch failed, keeping last rate", "rate", s.Rate().String(), "error", err)
		}
		return
	}
	s.logger.Debug("USD/KRW rate updated", "rate", rate.String())
}
