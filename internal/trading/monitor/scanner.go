package monitor

import (
	"context"

	"arb_monitor/internal/core"
)

// Scanner produces one complete snapshot per call.
// A returned snapshot is owned by the caller and must not be touched by the scanner afterwards.
type Scanner interface {
	Kind() string
	Scan(ctx context.Context) (*core.Snapshot, error)
}
