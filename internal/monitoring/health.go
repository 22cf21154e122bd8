package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     *int64       `json:"latency_ms,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Goroutines int                        `json:"goroutines"`
}

// Checker is anything that can report its own reachability
type Checker func(ctx context.Context) error

type registeredCheck struct {
	check    Checker
	critical bool
	slow     time.Duration
}

// HealthChecker runs the registered dependency checks on demand
type HealthChecker struct {
	mu        sync.RWMutex
	startTime time.Time
	service   string
	version   string
	timeout   time.Duration
	checks    map[string]registeredCheck
	now       func() time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		service:   service,
		version:   version,
		timeout:   5 * time.Second,
		checks:    make(map[string]registeredCheck),
		now:       time.Now,
	}
}

// Register adds a check. A failing critical check makes the service unhealthy; a failing
// optional one only degrades it. Checks slower than slow report degraded.
func (hc *HealthChecker) Register(name string, check Checker, critical bool, slow time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = registeredCheck{check: check, critical: critical, slow: slow}
}

// RegisterDatabaseCheck registers the Postgres ping. The database is critical.
func (hc *HealthChecker) RegisterDatabaseCheck(check Checker) {
	hc.Register("database", check, true, time.Second)
}

// RegisterRedisCheck registers the Redis ping. Runs still work without Redis, so it is optional.
func (hc *HealthChecker) RegisterRedisCheck(check Checker) {
	hc.Register("redis", check, false, 500*time.Millisecond)
}

func (hc *HealthChecker) runCheck(ctx context.Context, c registeredCheck) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := hc.now()
	err := c.check(ctx)
	latency := hc.now().Sub(start).Milliseconds()

	switch {
	case err != nil && c.critical:
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("check failed: %v", err), Latency: &latency, LastChecked: hc.now()}
	case err != nil:
		return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("check failed: %v", err), Latency: &latency, LastChecked: hc.now()}
	case c.slow > 0 && latency > c.slow.Milliseconds():
		return ComponentHealth{Status: HealthStatusDegraded, Message: "slow response", Latency: &latency, LastChecked: hc.now()}
	default:
		return ComponentHealth{Status: HealthStatusHealthy, Latency: &latency, LastChecked: hc.now()}
	}
}

// GetHealth runs every check and folds the results into one status
func (hc *HealthChecker) GetHealth(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(hc.checks))
	for name, c := range hc.checks {
		checks[name] = c
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	overall := HealthStatusHealthy
	components := make(map[string]ComponentHealth, len(names))
	for _, name := range names {
		result := hc.runCheck(ctx, checks[name])
		components[name] = result
		switch {
		case result.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case result.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:     overall,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  hc.now(),
		Uptime:     time.Since(hc.startTime).Round(time.Second).String(),
		Components: components,
		Goroutines: runtime.NumGoroutine(),
	}
}

// HealthHandler returns a Gin handler for health checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth(c.Request.Context())

		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
			"uptime": time.Since(hc.startTime).Round(time.Second).String(),
		})
	}
}
