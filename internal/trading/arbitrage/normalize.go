package arbitrage

import (
	"fmt"

	apperrors "arb_monitor/pkg/errors"

	"github.com/shopspring/decimal"
)

// Normalize converts a per-settlement funding rate to an hourly rate.
// Decimals cannot hold NaN or infinities, so a positive interval is also finite.
func Normalize(rate, intervalHours decimal.Decimal) (decimal.Decimal, error) {
	if !intervalHours.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s hours", apperrors.ErrInvalidInterval, intervalHours)
	}
	return rate.Div(intervalHours), nil
}
