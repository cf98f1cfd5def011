// Package health aggregates component health into the service status
package health

import (
	"sort"
	"sync"

	"arb_monitor/internal/core"
	"arb_monitor/pkg/liveserver"
)

// Service statuses
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthManager aggregates health status from different components
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

// NewHealthManager creates a new health manager
func NewHealthManager(logger core.ILogger) *HealthManager {
	if logger == nil {
		return &HealthManager{
			checks: make(map[string]func() error),
		}
	}
	return &HealthManager{
		logger: logger.WithField("component", "health_manager"),
		checks: make(map[string]func() error),
	}
}

// Register adds a new health check for a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// Components returns the registered component names in sorted order
func (hm *HealthManager) Components() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStatus returns the current status of all registered components
func (hm *HealthManager) GetStatus() map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]string)
	for component, check := range hm.checks {
		if err := check(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// IsHealthy returns true if all registered components are healthy
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for _, check := range hm.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}

// Report renders the status for the /health endpoint.
// An unhealthy component degrades the service; it keeps serving the last good data.
func (hm *HealthManager) Report() liveserver.HealthReport {
	status := hm.GetStatus()
	report := liveserver.HealthReport{Status: StatusOK, Components: status}
	for component, s := range status {
		if s != "Healthy" {
			report.Status = StatusDegraded
			if hm.logger != nil {
				hm.logger.Debug("Component unhealthy", "component", component, "status", s)
			}
		}
	}
	return report
}
