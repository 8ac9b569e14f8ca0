package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each dependency check on /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports liveness, build metadata and dependency checks.
// It always answers 200 so a peer's probe only fails when the process is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	resp := map[string]any{
		"status":     status,
		"version":    s.version,
		"role":       s.role,
		"site":       s.site,
		"secondary":  s.syncStatus(),
		"ws_clients": s.hub.ClientCount(),
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}
	writeJSON(w, http.StatusOK, resp)
}
