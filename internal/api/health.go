package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// Component states reported by the health endpoint.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDisabled = "disabled"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth checks every dependency concurrently. It answers 503 when a
// required component is down; a failing InfluxDB mirror only degrades
// its own entry.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthChecker{
		"database": s.db,
	}
	if s.mqtt != nil {
		checks["mqtt"] = s.mqtt
	}
	if s.influx != nil {
		checks["influxdb"] = s.influx
	}

	resp := HealthResponse{
		Status:     statusOK,
		Version:    s.version,
		Components: make(map[string]ComponentHealth, len(checks)+1),
	}
	if s.influx == nil {
		resp.Components["influxdb"] = ComponentHealth{Status: statusDisabled}
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		checker := checks[name]
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			errs[i] = checker.HealthCheck(ctx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // checks report through errs

	status := http.StatusOK
	for i, name := range names {
		if errs[i] == nil {
			resp.Components[name] = ComponentHealth{Status: statusOK}
			continue
		}
		resp.Components[name] = ComponentHealth{Status: statusDegraded, Error: errs[i].Error()}
		if name != "influxdb" {
			resp.Status = statusDegraded
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
