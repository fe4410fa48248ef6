package chat

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Checker serves the liveness and readiness endpoints.
type Checker struct {
	deps      map[string]Pinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker takes the dependencies checked by /ready; nil entries are
// skipped.
func NewChecker(version string, deps map[string]Pinger) *Checker {
	checked := make(map[string]Pinger, len(deps))
	for name, dep := range deps {
		if dep != nil {
			checked[name] = dep
		}
	}
	return &Checker{
		deps:      checked,
		version:   version,
		startTime: time.Now(),
	}
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/ready", c.Ready)
}

type HealthStatus struct {
	Status string                  `json:"status"`
	Checks map[string]*CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health reports that the process is up.
func (c *Checker) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": c.version,
		"uptime":  time.Since(c.startTime).Round(time.Second).String(),
	})
}

// Ready pings every dependency.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, HealthStatus{Status: "not ready"})
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ready", Checks: make(map[string]*CheckResult)}
	for name, dep := range c.deps {
		start := time.Now()
		if err := dep.Ping(pingCtx); err != nil {
			status.Status = "not ready"
			status.Checks[name] = &CheckResult{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Checks[name] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
	}

	if status.Status != "ready" {
		return ctx.JSON(http.StatusServiceUnavailable, status)
	}
	return ctx.JSON(http.StatusOK, status)
}
