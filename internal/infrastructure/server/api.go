// Package server exposes snapshots and the funding calculator over HTTP and WebSocket
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/internal/trading/arbitrage"
	"arb_monitor/internal/trading/fx"
	"arb_monitor/internal/trading/monitor"
	apperrors "arb_monitor/pkg/errors"
	"arb_monitor/pkg/liveserver"

	"github.com/shopspring/decimal"
)

// FundingCalculator answers on-demand funding queries
type FundingCalculator interface {
	Calculate(ctx context.Context, req core.FundingRequest) (*core.FundingCalculation, error)
}

// RateService is the USD/KRW rate holder behind /exchange-rate
type RateService interface {
	Quote() fx.Quote
	Set(rate decimal.Decimal) error
}

// Defaults fill omitted request fields
type Defaults struct {
	PositionSize decimal.Decimal
	Leverage     decimal.Decimal
	HoldingHours decimal.Decimal
	ResultLimit  int
}

// APIConfig wires the REST handlers to their data sources
type APIConfig struct {
	Name       string
	Version    string
	Symbols    []string
	Exchanges  []string
	Fees       *arbitrage.FeeTable
	Funding    *monitor.SnapshotCell
	Price      *monitor.SnapshotCell
	Calculator FundingCalculator
	FX         RateService // nil when no KRW venue is active
	Defaults   Defaults
	PoolStats  func() map[string]interface{}
}

// API serves the REST surface
type API struct {
	cfg    APIConfig
	logger core.ILogger
}

const defaultResultLimit = 20

// NewAPI creates the REST handlers
func NewAPI(cfg APIConfig, logger core.ILogger) *API {
	if cfg.Defaults.ResultLimit <= 0 {
		cfg.Defaults.ResultLimit = defaultResultLimit
	}
	return &API{
		cfg:    cfg,
		logger: logger.WithField("component", "api"),
	}
}

// Register installs the routes on the live server
func (a *API) Register(srv *liveserver.Server) {
	for pattern, handler := range a.Routes() {
		srv.HandleFunc(pattern, handler)
	}
}

// Routes returns the handlers keyed by mux pattern
func (a *API) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /{$}":                       a.handleIndex,
		"GET /symbols":                   a.handleSymbols,
		"GET /exchanges":                 a.handleExchanges,
		"GET /api/funding/opportunities": a.handleOpportunities,
		"POST /api/funding/calculate":    a.handleCalculate,
		"GET /api/price/spreads":         a.handleSpreads,
		"GET /api/price/premiums":        a.handlePremiums,
		"GET /exchange-rate":             a.handleGetRate,
		"POST /exchange-rate":            a.handleSetRate,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Status: status})
}

// statusFor maps sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest), errors.Is(err, apperrors.ErrInvalidPair):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDataUnavailable):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrExchangeUnavailable), errors.Is(err, apperrors.ErrInvalidInterval):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func invalidParam(name string, err error) error {
	return fmt.Errorf("%w: invalid %s: %v", apperrors.ErrInvalidRequest, name, err)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		return 0, invalidParam(name, err)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(name, err)
	}
	return v, nil
}

func queryDecimal(r *http.Request, name string) (decimal.Decimal, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, invalidParam(name, err)
	}
	return v, true, nil
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := make([]string, 0, len(a.Routes())+3)
	for pattern := range a.Routes() {
		if pattern != "GET /{$}" {
			endpoints = append(endpoints, pattern)
		}
	}
	endpoints = append(endpoints, "GET /health", "GET /metrics", "GET /ws")
	sort.Strings(endpoints)

	info := map[string]interface{}{
		"name":      a.cfg.Name,
		"version":   a.cfg.Version,
		"exchanges": a.cfg.Exchanges,
		"symbols":   len(a.cfg.Symbols),
		"endpoints": endpoints,
		"time":      time.Now().UTC(),
	}
	if a.cfg.PoolStats != nil {
		info["fetch_pool"] = a.cfg.PoolStats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": a.cfg.Symbols,
		"count":   len(a.cfg.Symbols),
	})
}

type exchangeInfo struct {
	core.ExchangeFeeProfile
	FundingIntervalHours decimal.Decimal `json:"funding_interval_hours"`
	HasFunding           bool            `json:"has_funding"`
}

// handleExchanges lists the active exchanges, or every exchange in the fee table with all=true
func (a *API) handleExchanges(w http.ResponseWriter, r *http.Request) {
	all, err := queryBool(r, "all")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	names := a.cfg.Exchanges
	if all {
		names = a.cfg.Fees.Exchanges()
	}

	out := make([]exchangeInfo, 0, len(names))
	for _, name := range names {
		info := exchangeInfo{
			ExchangeFeeProfile: a.cfg.Fees.Profile(name),
			HasFunding:         a.cfg.Fees.HasFundingSchedule(name),
		}
		if info.HasFunding {
			info.FundingIntervalHours = a.cfg.Fees.IntervalHours(name)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchanges": out})
}

type opportunitiesResponse struct {
	Opportunities   []core.FundingOpportunity `json:"opportunities"`
	Total           int                       `json:"total"`
	Sequence        uint64                    `json:"sequence"`
	Timestamp       time.Time                 `json:"timestamp"`
	Restored        bool                      `json:"restored"`
	FailedExchanges []string                  `json:"failed_exchanges"`
}

func (a *API) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", a.cfg.Defaults.ResultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	onePerSymbol, err := queryBool(r, "one_per_symbol")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minAPR, hasMin, err := queryDecimal(r, "min_apr")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := core.NormalizeSymbol(r.URL.Query().Get("symbol"))

	resp := opportunitiesResponse{
		Opportunities:   []core.FundingOpportunity{},
		FailedExchanges: []string{},
	}

	snap := a.cfg.Funding.Load()
	if snap != nil {
		opps := snap.Opportunities
		if hasMin {
			opps = arbitrage.FilterMinAPR(opps, minAPR)
		}
		if symbol != "" {
			opps = arbitrage.FilterSymbol(opps, symbol, 0)
		}
		if onePerSymbol {
			opps = arbitrage.BestPerSymbol(opps, 0)
		}
		resp.Total = len(opps)
		resp.Opportunities = arbitrage.TopOpportunities(opps, limit)
		resp.Sequence = snap.Sequence
		resp.Timestamp = snap.Timestamp
		resp.Restored = snap.Restored
		if snap.FailedExchanges != nil {
			resp.FailedExchanges = snap.FailedExchanges
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req core.FundingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, invalidParam("body", err))
		return
	}

	if req.PositionSize.IsZero() {
		req.PositionSize = a.cfg.Defaults.PositionSize
	}
	if req.Leverage.IsZero() {
		req.Leverage = a.cfg.Defaults.Leverage
	}
	if req.HoldingHours.IsZero() {
		req.HoldingHours = a.cfg.Defaults.HoldingHours
	}

	calc, err := a.cfg.Calculator.Calculate(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			a.logger.Warn("Funding calculation failed", "symbol", req.Symbol, "error", err)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

type spreadsResponse struct {
	Spreads    []core.SpreadResult `json:"spreads"`
	Total      int                 `json:"total"`
	AvgPremium decimal.Decimal     `json:"avg_premium"`
	Sequence   uint64              `json:"sequence"`
	Timestamp  time.Time           `json:"timestamp"`
}

func (a *API) handleSpreads(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profitableOnly, err := queryBool(r, "profitable_only")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol := core.NormalizeSymbol(r.URL.Query().Get("symbol"))

	resp := spreadsResponse{Spreads: []core.SpreadResult{}}
	if snap := a.cfg.Price.Load(); snap != nil {
		for _, s := range snap.Spreads {
			if symbol != "" && s.Symbol != symbol {
				continue
			}
			if profitableOnly && !s.IsProfitable {
				continue
			}
			resp.Spreads = append(resp.Spreads, s)
		}
		resp.Total = len(resp.Spreads)
		if limit > 0 && limit < len(resp.Spreads) {
			resp.Spreads = resp.Spreads[:limit]
		}
		resp.AvgPremium = snap.AvgPremium
		resp.Sequence = snap.Sequence
		resp.Timestamp = snap.Timestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

type premiumsResponse struct {
	Premiums   []core.PremiumQuote `json:"premiums"`
	AvgPremium decimal.Decimal     `json:"avg_premium"`
	Rate       *fx.Quote           `json:"exchange_rate,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

func (a *API) handlePremiums(w http.ResponseWriter, r *http.Request) {
	resp := premiumsResponse{Premiums: []core.PremiumQuote{}}
	if snap := a.cfg.Price.Load(); snap != nil {
		if snap.Premiums != nil {
			resp.Premiums = snap.Premiums
		}
		resp.AvgPremium = snap.AvgPremium
		resp.Timestamp = snap.Timestamp
	}
	if a.cfg.FX != nil {
		q := a.cfg.FX.Quote()
		resp.Rate = &q
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetRate(w http.ResponseWriter, r *http.Request) {
	if a.cfg.FX == nil {
		writeError(w, http.StatusNotFound, errors.New("exchange rate service is disabled"))
		return
	}
	writeJSON(w, http.StatusOK, a.cfg.FX.Quote())
}

func (a *API) handleSetRate(w http.ResponseWriter, r *http.Request) {
	if a.cfg.FX == nil {
		writeError(w, http.StatusNotFound, errors.New("exchange rate service is disabled"))
		return
	}

	var body struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, invalidParam("body", err))
		return
	}
	if err := a.cfg.FX.Set(body.Rate); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.cfg.FX.Quote())
}
