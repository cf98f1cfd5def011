package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeSpread(t *testing.T) {
	long := decimal.RequireFromString("0.0001")
	short := decimal.RequireFromString("0.0003")

	assert.Equal(t, "0.0002", ComputeSpread(long, short).String())
}

func TestAnnualizeSpread(t *testing.T) {
	spread := decimal.RequireFromString("0.0002")

	// 0.0002 * (24/8) * 365
	apr := AnnualizeSpread(spread, decimal.NewFromInt(8))
	assert.True(t, apr.Equal(decimal.RequireFromString("0.219")), apr.String())

	assert.True(t, AnnualizeSpread(spread, decimal.Zero).IsZero())
}

func TestHourlyAPR(t *testing.T) {
	apr := HourlyAPR(decimal.RequireFromString("0.0000375"))
	assert.True(t, apr.Equal(decimal.RequireFromString("32.85")), apr.String())
}
