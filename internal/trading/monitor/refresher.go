package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Refresher states
const (
	StateIdle       = "IDLE"
	StateRefreshing = "REFRESHING"
)

// ErrRefreshInProgress is returned when a cycle is already running
var ErrRefreshInProgress = errors.New("refresh already in progress")

// SnapshotStore persists the latest snapshot of each kind
type SnapshotStore interface {
	Save(ctx context.Context, snap *core.Snapshot) error
	Load(ctx context.Context, kind string) (*core.Snapshot, error)
}

// Refresher runs a Scanner periodically and publishes complete snapshots into a cell.
// A failed or cancelled cycle leaves the previous snapshot in place.
type Refresher struct {
	scanner      Scanner
	cell         *SnapshotCell
	store        SnapshotStore
	interval     time.Duration
	cycleTimeout time.Duration
	logger       core.ILogger
	metrics      *telemetry.MetricsHolder
	tracer       trace.Tracer

	refreshing atomic.Bool
	degraded   atomic.Bool
	seq        atomic.Uint64
	lastErr    atomic.Pointer[error]
}

// NewRefresher creates a refresher. store may be nil.
func NewRefresher(scanner Scanner, cell *SnapshotCell, store SnapshotStore, interval, cycleTimeout time.Duration, logger core.ILogger) *Refresher {
	if cycleTimeout <= 0 {
		cycleTimeout = interval
	}
	return &Refresher{
		scanner:      scanner,
		cell:         cell,
		store:        store,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger.WithField("component", "refresher").WithField("kind", scanner.Kind()),
		metrics:      telemetry.GetGlobalMetrics(),
		tracer:       telemetry.GetTracer("monitor"),
	}
}

// Cell returns the cell this refresher publishes into
func (r *Refresher) Cell() *SnapshotCell {
	return r.cell
}

// Kind returns the scanner kind
func (r *Refresher) Kind() string {
	return r.scanner.Kind()
}

// State returns IDLE or REFRESHING
func (r *Refresher) State() string {
	if r.refreshing.Load() {
		return StateRefreshing
	}
	return StateIdle
}

// Degraded reports whether the last cycle failed
func (r *Refresher) Degraded() bool {
	return r.degraded.Load()
}

// Restore publishes the persisted snapshot, if any, so readers have data before the first cycle
func (r *Refresher) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snap, err := r.store.Load(ctx, r.scanner.Kind())
	if err != nil {
		return fmt.Errorf("failed to restore %s snapshot: %w", r.scanner.Kind(), err)
	}
	if snap == nil {
		return nil
	}

	restored := *snap
	restored.Restored = true
	r.seq.Store(restored.Sequence)
	r.cell.Store(&restored)

	r.logger.Info("Restored snapshot",
		"sequence", restored.Sequence,
		"timestamp", restored.Timestamp,
		"entries", restored.Total())
	return nil
}

// Run refreshes immediately and then on every interval until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("Starting refresher", "interval", r.interval, "cycle_timeout", r.cycleTimeout)

	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Refresher stopped")
			return nil
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Refresher) runCycle(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("Refresh failed", "error", err)
	}
}

// Refresh runs one cycle. Only one cycle runs at a time.
func (r *Refresher) Refresh(ctx context.Context) error {
	if !r.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer r.refreshing.Store(false)

	kind := r.scanner.Kind()
	start := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, r.cycleTimeout)
	defer cancel()

	cycleCtx, span := r.tracer.Start(cycleCtx, "refresh", trace.WithAttributes(attribute.String("kind", kind)))
	defer span.End()

	snap, err := r.scanner.Scan(cycleCtx)
	durationMs := float64(time.Since(start).Milliseconds())

	// A cycle cut short publishes nothing, even if the scanner returned partial data
	if err == nil && cycleCtx.Err() != nil {
		err = cycleCtx.Err()
	}
	if err != nil {
		span.RecordError(err)
		r.fail(kind, err)
		r.metrics.RecordCycle(ctx, kind, durationMs, false)
		return err
	}

	snap.Kind = kind
	snap.Sequence = r.seq.Add(1)
	snap.Restored = false
	r.cell.Store(snap)

	r.degraded.Store(false)
	r.lastErr.Store(nil)
	r.metrics.SetDegraded(kind, false)
	r.metrics.SetOpportunities(kind, int64(snap.Total()))
	r.metrics.SetSnapshotSequence(kind, int64(snap.Sequence))
	r.metrics.RecordCycle(ctx, kind, durationMs, true)

	r.logger.Info("Snapshot published",
		"sequence", snap.Sequence,
		"entries", snap.Total(),
		"failed_exchanges", snap.FailedExchanges,
		"duration_ms", durationMs)

	if r.store != nil {
		if err := r.store.Save(ctx, snap); err != nil {
			r.logger.Warn("Failed to persist snapshot", "sequence", snap.Sequence, "error", err)
		}
	}
	return nil
}

func (r *Refresher) fail(kind string, err error) {
	r.degraded.Store(true)
	r.lastErr.Store(&err)
	r.metrics.SetDegraded(kind, true)
}

// HealthCheck reports the last cycle's error while degraded
func (r *Refresher) HealthCheck() error {
	if !r.degraded.Load() {
		return nil
	}
	if p := r.lastErr.Load(); p != nil {
		return fmt.Errorf("%s snapshot stale: %w", r.scanner.Kind(), *p)
	}
	return fmt.Errorf("%s snapshot stale", r.scanner.Kind())
}
