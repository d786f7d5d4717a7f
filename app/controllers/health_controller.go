package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"taskd/app/services"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthController serves liveness and setup diagnostics.
type HealthController struct {
	Checks       map[string]HealthCheck
	ConfigIssues []string
	Prober       services.Prober
	Collection   string
	Logger       *slog.Logger
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /healthz.
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(c.Checks) > 0 {
		resp.Checks = make(map[string]string, len(c.Checks))
	}
	for name, check := range c.Checks {
		if err := check(ctx); err != nil {
			c.Logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// Setup handles GET /setup.
func (c *HealthController) Setup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, services.CheckSetup(r.Context(), c.ConfigIssues, c.Prober, c.Collection))
}
