package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricRefreshCyclesTotal   = "arb_monitor_refresh_cycles_total"
	MetricRefreshFailuresTotal = "arb_monitor_refresh_failures_total"
	MetricRefreshDuration      = "arb_monitor_refresh_duration_ms"
	MetricFetchErrorsTotal     = "arb_monitor_fetch_errors_total"
	MetricLatencyExchange      = "arb_monitor_latency_exchange_ms"
	MetricOpportunities        = "arb_monitor_opportunities"
	MetricBestAPR              = "arb_monitor_best_apr_percent"
	MetricSnapshotSequence     = "arb_monitor_snapshot_sequence"
	MetricDegraded             = "arb_monitor_degraded"
	MetricUSDKRWRate           = "arb_monitor_usd_krw_rate"
)

// MetricsHolder holds initialized instruments.
// Instruments are nil until InitMetrics runs; the Record helpers are no-ops until then.
type MetricsHolder struct {
	RefreshCyclesTotal   metric.Int64Counter
	RefreshFailuresTotal metric.Int64Counter
	RefreshDuration      metric.Float64Histogram
	FetchErrorsTotal     metric.Int64Counter
	LatencyExchange      metric.Float64Histogram
	Opportunities        metric.Int64ObservableGauge
	BestAPR              metric.Float64ObservableGauge
	SnapshotSequence     metric.Int64ObservableGauge
	Degraded             metric.Int64ObservableGauge
	USDKRWRate           metric.Float64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	opportunitiesMap map[string]int64 // snapshot kind -> count
	bestAPRMap       map[string]float64
	sequenceMap      map[string]int64
	degradedMap      map[string]int64
	usdKrw           float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = newMetricsHolder()
	})
	return globalMetrics
}

func newMetricsHolder() *MetricsHolder {
	return &MetricsHolder{
		opportunitiesMap: make(map[string]int64),
		bestAPRMap:       make(map[string]float64),
		sequenceMap:      make(map[string]int64),
		degradedMap:      make(map[string]int64),
	}
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.RefreshCyclesTotal, err = meter.Int64Counter(MetricRefreshCyclesTotal, metric.WithDescription("Completed refresh cycles"))
	if err != nil {
		return err
	}

	m.RefreshFailuresTotal, err = meter.Int64Counter(MetricRefreshFailuresTotal, metric.WithDescription("Refresh cycles that kept the previous snapshot"))
	if err != nil {
		return err
	}

	m.RefreshDuration, err = meter.Float64Histogram(MetricRefreshDuration, metric.WithDescription("Duration of a refresh cycle"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.FetchErrorsTotal, err = meter.Int64Counter(MetricFetchErrorsTotal, metric.WithDescription("Failed market data fetches"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange market data calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.Opportunities, err = meter.Int64ObservableGauge(MetricOpportunities, metric.WithDescription("Entries in the latest published snapshot"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for kind, val := range m.opportunitiesMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("kind", kind)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.BestAPR, err = meter.Float64ObservableGauge(MetricBestAPR, metric.WithDescription("Best funding APR per symbol in the latest snapshot"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.bestAPRMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SnapshotSequence, err = meter.Int64ObservableGauge(MetricSnapshotSequence, metric.WithDescription("Sequence number of the latest published snapshot"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for kind, val := range m.sequenceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("kind", kind)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Degraded, err = meter.Int64ObservableGauge(MetricDegraded, metric.WithDescription("Refresher degraded state (1=degraded, 0=normal)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for kind, val := range m.degradedMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("kind", kind)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.USDKRWRate, err = meter.Float64ObservableGauge(MetricUSDKRWRate, metric.WithDescription("USD/KRW conversion rate in use"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.usdKrw > 0 {
				obs.Observe(m.usdKrw)
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordCycle counts a refresh cycle and its duration
func (m *MetricsHolder) RecordCycle(ctx context.Context, kind string, durationMs float64, ok bool) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if m.RefreshCyclesTotal != nil {
		m.RefreshCyclesTotal.Add(ctx, 1, attrs)
	}
	if !ok && m.RefreshFailuresTotal != nil {
		m.RefreshFailuresTotal.Add(ctx, 1, attrs)
	}
	if m.RefreshDuration != nil {
		m.RefreshDuration.Record(ctx, durationMs, attrs)
	}
}

// RecordFetch records latency and failures of one exchange call
func (m *MetricsHolder) RecordFetch(ctx context.Context, exchange, kind string, durationMs float64, err error) {
	attrs := metric.WithAttributes(attribute.String("exchange", exchange), attribute.String("kind", kind))
	if m.LatencyExchange != nil {
		m.LatencyExchange.Record(ctx, durationMs, attrs)
	}
	if err != nil && m.FetchErrorsTotal != nil {
		m.FetchErrorsTotal.Add(ctx, 1, attrs)
	}
}

// Helpers to update observable state

func (m *MetricsHolder) SetOpportunities(kind string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opportunitiesMap[kind] = count
}

func (m *MetricsHolder) SetBestAPR(symbol string, apr float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bestAPRMap[symbol] = apr
}

func (m *MetricsHolder) SetSnapshotSequence(kind string, seq int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequenceMap[kind] = seq
}

func (m *MetricsHolder) SetDegraded(kind string, degraded bool) {
	val := int64(0)
	if degraded {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degradedMap[kind] = val
}

func (m *MetricsHolder) SetUSDKRWRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usdKrw = rate
}

func (m *MetricsHolder) GetBestAPR() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64, len(m.bestAPRMap))
	for k, v := range m.bestAPRMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) IsDegraded(kind string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.degradedMap[kind] == 1
}
