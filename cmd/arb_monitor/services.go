package main

import (
	"context"
	"fmt"
	"time"

	"arb_monitor/internal/bootstrap"
	"arb_monitor/internal/config"
	"arb_monitor/internal/core"
	"arb_monitor/internal/exchange"
	"arb_monitor/internal/infrastructure/health"
	api "arb_monitor/internal/infrastructure/server"
	"arb_monitor/internal/infrastructure/store"
	"arb_monitor/internal/trading/arbitrage"
	"arb_monitor/internal/trading/fx"
	"arb_monitor/internal/trading/monitor"
	"arb_monitor/pkg/concurrency"
	pkghttp "arb_monitor/pkg/http"
	"arb_monitor/pkg/liveserver"

	"github.com/shopspring/decimal"
)

const (
	fxRequestTimeout     = 10 * time.Second
	healthStreamInterval = 30 * time.Second
	storePingTimeout     = 2 * time.Second
)

// services is the assembled object graph of the monitor
type services struct {
	cfg    *config.Config
	logger core.ILogger

	pool       *concurrency.WorkerPool
	store      *store.SQLiteStore
	fx         *fx.Service
	refreshers []*monitor.Refresher
	hub        *liveserver.Hub
	server     *liveserver.Server
	publisher  *api.StreamPublisher
	health     *health.HealthManager
}

func buildServices(cfg *config.Config, logger core.ILogger) (*services, error) {
	s := &services{cfg: cfg, logger: logger}

	exchanges, err := exchange.NewExchanges(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchanges: %w", err)
	}

	fees := arbitrage.NewFeeTable(feeOverrides(cfg))

	s.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "ExchangeFetchPool",
		MaxWorkers:  cfg.Concurrency.FetchPoolSize,
		MaxCapacity: cfg.Concurrency.FetchPoolBuffer,
	}, logger)
	collector := monitor.NewCollector(exchanges, s.pool, logger)

	var snapshotStore monitor.SnapshotStore
	if cfg.Storage.Enabled {
		s.store, err = store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		snapshotStore = s.store
	}

	var conversion monitor.ConversionRate
	if hasKRWVenue(exchanges) {
		client := pkghttp.NewClient(cfg.FX.BaseURL, fxRequestTimeout)
		s.fx = fx.NewService(client, decimal.NewFromFloat(cfg.FX.DefaultRate), cfg.FX.RefreshInterval(), logger)
		conversion = s.fx
	}

	fundingCell := monitor.NewSnapshotCell()
	priceCell := monitor.NewSnapshotCell()

	if cfg.Scanner.FundingEnabled {
		scanner := monitor.NewFundingScanner(collector, cfg.App.Symbols,
			arbitrage.NewRanker(decimal.NewFromFloat(cfg.Scanner.MinAPR)), fees, logger)
		s.refreshers = append(s.refreshers, monitor.NewRefresher(scanner, fundingCell, snapshotStore,
			cfg.Scanner.FundingInterval(), cfg.Scanner.CycleTimeout(), logger))
	}
	if cfg.Scanner.PriceEnabled {
		scanner := monitor.NewPriceScanner(collector, monitor.PriceScannerConfig{
			Symbols:          cfg.App.Symbols,
			TransferFee:      decimal.NewFromFloat(cfg.Scanner.TransferFee),
			PremiumReference: cfg.Scanner.PremiumReference,
		}, fees, conversion, logger)
		s.refreshers = append(s.refreshers, monitor.NewRefresher(scanner, priceCell, snapshotStore,
			cfg.Scanner.PriceInterval(), cfg.Scanner.CycleTimeout(), logger))
	}

	var source arbitrage.RateSource
	if cfg.Scanner.CalculatorSource == config.SourceLive || !cfg.Scanner.FundingEnabled {
		if cfg.Scanner.CalculatorSource != config.SourceLive {
			logger.Warn("Funding scanner disabled, calculator falls back to live rates")
		}
		source = monitor.NewLiveRateSource(exchanges, fees)
	} else {
		source = monitor.NewSnapshotRateSource(fundingCell)
	}

	s.health = health.NewHealthManager(logger)
	for _, r := range s.refreshers {
		s.health.Register(r.Kind()+"_refresher", r.HealthCheck)
	}
	if s.store != nil {
		st := s.store
		s.health.Register("storage", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), storePingTimeout)
			defer cancel()
			return st.Ping(ctx)
		})
	}

	s.hub = liveserver.NewHub(logger)
	s.server = liveserver.NewServer(s.hub, logger, cfg.Server.AllowedOrigins)
	s.server.SetProduction(cfg.Server.Production)
	s.server.SetMaxConnections(cfg.Server.MaxConnections)
	s.server.SetRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)
	s.server.SetHealthFunc(s.health.Report)

	apiCfg := api.APIConfig{
		Name:       cfg.App.Name,
		Version:    version,
		Symbols:    cfg.App.Symbols,
		Exchanges:  cfg.App.ActiveExchanges,
		Fees:       fees,
		Funding:    fundingCell,
		Price:      priceCell,
		Calculator: arbitrage.NewCalculator(source, logger),
		PoolStats:  s.pool.Stats,
		Defaults: api.Defaults{
			PositionSize: decimal.NewFromFloat(cfg.Scanner.DefaultPositionSize),
			Leverage:     decimal.NewFromFloat(cfg.Scanner.DefaultLeverage),
			HoldingHours: decimal.NewFromFloat(cfg.Scanner.DefaultHoldingHours),
			ResultLimit:  cfg.Scanner.ResultLimit,
		},
	}
	if s.fx != nil {
		apiCfg.FX = s.fx
	}
	api.NewAPI(apiCfg, logger).Register(s.server)

	s.publisher = api.NewStreamPublisher(fundingCell, priceCell, s.server, logger)
	s.publisher.SetHealth(s.health.Report, healthStreamInterval)
	s.publisher.SetResultLimit(cfg.Scanner.ResultLimit)

	return s, nil
}

// restore publishes persisted snapshots before the first cycle
func (s *services) restore(ctx context.Context) {
	for _, r := range s.refreshers {
		if err := r.Restore(ctx); err != nil {
			s.logger.Warn("Snapshot restore failed, starting empty", "kind", r.Kind(), "error", err)
		}
	}
}

func (s *services) runners() []bootstrap.Runner {
	runners := []bootstrap.Runner{
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			s.hub.Run(ctx)
			return nil
		}),
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			return s.server.Start(ctx, fmt.Sprintf(":%d", s.cfg.Server.Port))
		}),
		s.publisher,
	}
	for _, r := range s.refreshers {
		runners = append(runners, r)
	}
	if s.fx != nil && s.cfg.FX.Enabled {
		runners = append(runners, s.fx)
	}
	return runners
}

// Close releases the worker pool and the store
func (s *services) Close() {
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close snapshot store", "error", err)
		}
	}
}

func hasKRWVenue(exchanges []core.IMarketData) bool {
	for _, ex := range exchanges {
		if ex.Name() == "upbit" {
			return true
		}
	}
	return false
}

func feeOverrides(cfg *config.Config) map[string]arbitrage.FeeOverride {
	out := make(map[string]arbitrage.FeeOverride, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		out[name] = arbitrage.FeeOverride{
			MakerFee:             optionalDecimal(ex.MakerFee),
			TakerFee:             optionalDecimal(ex.TakerFee),
			WithdrawalFee:        optionalDecimal(ex.WithdrawalFee),
			FundingIntervalHours: decimal.NewFromFloat(ex.FundingIntervalHours),
		}
	}
	return out
}

func optionalDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
