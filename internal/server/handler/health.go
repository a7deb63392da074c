package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds each backing-service probe so a stuck dependency
// cannot hang the health endpoint.
const checkTimeout = 2 * time.Second

// HealthCheck probes one backing service (postgres, redis, object storage).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint. It reports the running
// mode and the state of every wired backing service, so a probe can tell a
// healthy monitor-mode deployment from a live engine with a dead store.
type HealthHandler struct {
	mode   string
	checks []HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler for the given run mode and
// backing-service checks.
func NewHealthHandler(mode string, checks []HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:   mode,
		checks: checks,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck runs every backing-service probe and reports per-component
// state. Responds 200 when all components are reachable, 503 otherwise so
// orchestrators stop routing to a degraded instance.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(h.checks))
	status := "ok"

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			status = "degraded"
			components[c.Name] = err.Error()
			h.logger.Warn("component check failed",
				slog.String("name", c.Name),
				slog.String("error", err.Error()))
			continue
		}
		components[c.Name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"mode":       h.mode,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
