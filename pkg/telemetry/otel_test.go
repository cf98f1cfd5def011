package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := Setup("test-service", Options{})
	require.NoError(t, err)

	assert.NotNil(t, otel.GetTracerProvider())
	assert.NotNil(t, otel.GetMeterProvider())
	assert.NotNil(t, GetTracer("test-tracer"))
	assert.NotNil(t, GetMeter("test-meter"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestMetricsHolder_ObservableGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	holder := newMetricsHolder()
	require.NoError(t, holder.InitMetrics(provider.Meter("test")))

	holder.SetOpportunities("funding", 7)
	holder.SetBestAPR("BTC/USDT", 32.85)
	holder.SetDegraded("funding", true)
	holder.RecordCycle(context.Background(), "funding", 12.5, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}

	assert.True(t, found[MetricOpportunities])
	assert.True(t, found[MetricBestAPR])
	assert.True(t, found[MetricDegraded])
	assert.True(t, found[MetricRefreshCyclesTotal])
	assert.True(t, found[MetricRefreshFailuresTotal])
	assert.True(t, holder.IsDegraded("funding"))
	assert.Equal(t, 32.85, holder.GetBestAPR()["BTC/USDT"])
}

func TestMetricsHolder_NoopBeforeInit(t *testing.T) {
	holder := newMetricsHolder()
	assert.NotPanics(t, func() {
		holder.RecordCycle(context.Background(), "price", 1, true)
		holder.RecordFetch(context.Background(), "binance", "ticker", 1, assert.AnError)
	})
}
