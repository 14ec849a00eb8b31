package handler

import (
	"log/slog"
	"net/http"

	"github.com/vaultpilot/vaultpilot/internal/telemetry"
)

// LogsHandler serves the recorded telemetry log lines.
type LogsHandler struct {
	recorder *telemetry.Recorder
	logger   *slog.Logger
}

// NewLogsHandler creates a LogsHandler over the given recorder.
func NewLogsHandler(recorder *telemetry.Recorder, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{recorder: recorder, logger: logger}
}

// ListLogs returns recent log entries, newest first. The user query
// parameter filters to one identity; relevant=true keeps only
// balance-impacting entries.
// GET /api/logs?user=0x...&limit=100&relevant=true
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	depositor := queryDepositor(r)
	limit := queryInt(r, "limit", 100, 1000)
	relevantOnly := r.URL.Query().Get("relevant") == "true"

	entries := h.recorder.Logs(depositor, limit)
	if relevantOnly {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Relevant {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}
