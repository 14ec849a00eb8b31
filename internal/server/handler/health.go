package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks one backing dependency.
type Pinger func(ctx context.Context) error

// HealthHandler serves the health-check endpoint, probing each registered
// dependency with a short timeout.
type HealthHandler struct {
	checks map[string]Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given dependency checks.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck reports overall status plus per-dependency results.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
