package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
	"github.com/vaultpilot/vaultpilot/internal/telemetry"
)

type stubSnapshotter struct {
	snap strategy.Snapshot
}

func (s stubSnapshotter) Snapshot() strategy.Snapshot { return s.snap }

type stubStats struct {
	stats domain.VaultStats
	err   error
}

func (s stubStats) Stats(context.Context) (domain.VaultStats, error) { return s.stats, s.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestListLogs_UserParamFilters(t *testing.T) {
	rec := telemetry.NewRecorder(16)
	rec.Record(telemetry.Entry{Depositor: "0xAAA", Message: "for A"})
	rec.Record(telemetry.Entry{Depositor: "0xBBB", Message: "for B"})

	h := NewLogsHandler(rec, testLogger())

	rr := httptest.NewRecorder()
	h.ListLogs(rr, httptest.NewRequest(http.MethodGet, "/api/logs?user=0xAAA", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "for A", logs[0].(map[string]any)["message"])
}

func TestListLogs_DepositorAliasStillAccepted(t *testing.T) {
	rec := telemetry.NewRecorder(16)
	rec.Record(telemetry.Entry{Depositor: "0xAAA", Message: "for A"})
	rec.Record(telemetry.Entry{Depositor: "0xBBB", Message: "for B"})

	h := NewLogsHandler(rec, testLogger())

	rr := httptest.NewRecorder()
	h.ListLogs(rr, httptest.NewRequest(http.MethodGet, "/api/logs?depositor=0xBBB", nil))

	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
}

func TestGetState_IncludesVaultStats(t *testing.T) {
	rec := telemetry.NewRecorder(16)
	h := NewStateHandler(stubSnapshotter{}, rec, stubStats{
		stats: domain.VaultStats{TVL: 1_000_000, TotalBorrowed: 250_000},
	}, testLogger())

	rr := httptest.NewRecorder()
	h.GetState(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	vault := body["vault"].(map[string]any)
	assert.Equal(t, float64(1_000_000), vault["tvl"])
	assert.Equal(t, float64(250_000), vault["total_borrowed"])
}

func TestGetState_NoStatsProviderOmitsVault(t *testing.T) {
	rec := telemetry.NewRecorder(16)
	h := NewStateHandler(stubSnapshotter{}, rec, nil, testLogger())

	rr := httptest.NewRecorder()
	h.GetState(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	body := decodeBody(t, rr)
	_, ok := body["vault"]
	assert.False(t, ok)
}

func TestGetState_UserParamScopesLastAction(t *testing.T) {
	rec := telemetry.NewRecorder(16)
	rec.RecordAction(domain.RebalanceAction{ID: "a1", Kind: domain.ActionBorrow, Depositor: "0xAAA", Venue: "home", Amount: 100})
	rec.RecordAction(domain.RebalanceAction{ID: "a2", Kind: domain.ActionRepay, Depositor: "0xBBB", Venue: "home", Amount: 50})

	h := NewStateHandler(stubSnapshotter{}, rec, nil, testLogger())

	rr := httptest.NewRecorder()
	h.GetState(rr, httptest.NewRequest(http.MethodGet, "/api/state?user=0xAAA", nil))

	body := decodeBody(t, rr)
	last := body["last_action"].(map[string]any)
	assert.Equal(t, "0xAAA", last["Depositor"])
}
