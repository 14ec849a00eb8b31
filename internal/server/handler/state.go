package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
	"github.com/vaultpilot/vaultpilot/internal/telemetry"
)

// Snapshotter exposes the scheduler's last-cycle outcome.
type Snapshotter interface {
	Snapshot() strategy.Snapshot
}

// StatsProvider reads the vault's aggregate figures. Nil when the process
// runs without a chain connection.
type StatsProvider interface {
	Stats(ctx context.Context) (domain.VaultStats, error)
}

// StateHandler serves the agent's current cycle state and recent actions.
type StateHandler struct {
	scheduler Snapshotter
	recorder  *telemetry.Recorder
	stats     StatsProvider
	logger    *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(scheduler Snapshotter, recorder *telemetry.Recorder, stats StatsProvider, logger *slog.Logger) *StateHandler {
	return &StateHandler{scheduler: scheduler, recorder: recorder, stats: stats, logger: logger}
}

// GetState returns the scheduler snapshot plus the most recent action,
// optionally scoped to one depositor.
// GET /api/state?user=0x...
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	depositor := queryDepositor(r)

	resp := map[string]any{
		"agent": h.scheduler.Snapshot(),
	}
	if h.stats != nil {
		stats, err := h.stats.Stats(r.Context())
		if err != nil {
			h.logger.Warn("vault stats unavailable", slog.String("error", err.Error()))
		} else {
			resp["vault"] = map[string]any{
				"tvl":            stats.TVL,
				"total_borrowed": stats.TotalBorrowed,
			}
		}
	}
	if last := h.recorder.LastAction(depositor); last != nil {
		resp["last_action"] = last
		resp["last_action_text"] = telemetry.FormatAction(*last)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListActions returns recent executed actions, newest first.
// GET /api/actions?user=0x...&limit=50
func (h *StateHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	depositor := queryDepositor(r)
	limit := queryInt(r, "limit", 50, 500)

	actions := h.recorder.Actions(depositor, limit)
	texts := make([]string, len(actions))
	for i, a := range actions {
		texts[i] = telemetry.FormatAction(a)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actions":  actions,
		"rendered": texts,
		"count":    len(actions),
	})
}
