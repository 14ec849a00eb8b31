package feeds

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func yieldServer(t *testing.T, pct float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"venue":"gateway:aurora","yield_pct":%g,"confidence":0.9,"strategy_tag":"gateway"}`, pct)
	}))
}

func TestObserver_LiveWritesThroughToCache(t *testing.T) {
	srv := yieldServer(t, 8.5)
	defer srv.Close()

	cache := memory.NewYieldCache()
	o := NewObserver(NewClient(srv.URL), cache, nil, 2.0, testLogger())

	opp := o.Observe(context.Background(), "gateway:aurora", "gateway")
	assert.Equal(t, domain.SourceLive, opp.Source)
	assert.Equal(t, 8.5, opp.YieldPct)
	assert.Equal(t, 0.9, opp.Confidence)

	cached, err := cache.GetYield(context.Background(), "gateway:aurora")
	require.NoError(t, err)
	assert.Equal(t, 8.5, cached.YieldPct)
}

func TestObserver_DegradesToCacheWhenFeedDown(t *testing.T) {
	srv := yieldServer(t, 8.5)
	cache := memory.NewYieldCache()
	o := NewObserver(NewClient(srv.URL), cache, nil, 2.0, testLogger())

	// Prime the cache from a live observation, then kill the feed.
	o.Observe(context.Background(), "gateway:aurora", "gateway")
	srv.Close()

	opp := o.Observe(context.Background(), "gateway:aurora", "gateway")
	assert.Equal(t, 8.5, opp.YieldPct)
	assert.NotEqual(t, domain.SourceSynthetic, opp.Source)
}

func TestObserver_SyntheticBaseline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	baseline := map[string]float64{"gateway:aurora": 4.0}
	o := NewObserver(NewClient(srv.URL), memory.NewYieldCache(), baseline, 2.0, testLogger())

	opp := o.Observe(context.Background(), "gateway:aurora", "gateway")
	assert.Equal(t, domain.SourceSynthetic, opp.Source)
	assert.Equal(t, 4.0, opp.YieldPct)
	assert.Equal(t, 0.25, opp.Confidence)
	assert.Equal(t, "gateway", opp.StrategyTag)

	// A venue without a baseline falls back to the configured default.
	opp = o.Observe(context.Background(), "unknown:venue", "")
	assert.Equal(t, 2.0, opp.YieldPct)
	assert.Equal(t, domain.SourceSynthetic, opp.Source)
}

func TestObserver_NilClientSkipsLivePath(t *testing.T) {
	cache := memory.NewYieldCache()
	require.NoError(t, cache.SetYield(context.Background(), domain.YieldOpportunity{
		Venue: "home", YieldPct: 3.1, Confidence: 0.5, Source: domain.SourceCached,
	}))

	o := NewObserver(nil, cache, nil, 2.0, testLogger())
	opp := o.Observe(context.Background(), "home", "")
	assert.Equal(t, 3.1, opp.YieldPct)
}

func TestClient_GetYield(t *testing.T) {
	srv := yieldServer(t, 6.25)
	defer srv.Close()

	c := NewClient(srv.URL)
	opp, err := c.GetYield(context.Background(), "gateway:aurora")
	require.NoError(t, err)
	assert.Equal(t, 6.25, opp.YieldPct)
	assert.Equal(t, domain.SourceLive, opp.Source)
	assert.False(t, opp.ObservedAt.IsZero())
}

func TestClient_GetYieldNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetYield(context.Background(), "nowhere")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
