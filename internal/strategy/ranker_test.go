package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

func opp(venue string, pct float64, tag string) domain.YieldOpportunity {
	return domain.YieldOpportunity{Venue: venue, YieldPct: pct, Confidence: 1, Source: domain.SourceLive, StrategyTag: tag}
}

func TestRank_OrdersDescending(t *testing.T) {
	r := Rank([]domain.YieldOpportunity{
		opp("home", 1.5, ""),
		opp("gateway:aurora", 8.5, "gateway"),
		opp("near:burrow", 6.2, "lending"),
	})

	require.Len(t, r.All, 3)
	assert.Equal(t, "gateway:aurora", r.All[0].Venue)
	assert.Equal(t, "near:burrow", r.All[1].Venue)
	assert.Equal(t, "home", r.All[2].Venue)

	require.NotNil(t, r.Best)
	assert.Equal(t, 8.5, r.Best.YieldPct)
}

func TestRank_BestPerBucket(t *testing.T) {
	r := Rank([]domain.YieldOpportunity{
		opp("home", 1.5, ""),
		opp("gateway:aurora", 8.5, "gateway"),
		opp("gateway:base", 4.0, "gateway"),
		opp("near:burrow", 6.2, "lending"),
	})

	best, ok := r.BestFor("gateway")
	require.True(t, ok)
	assert.Equal(t, "gateway:aurora", best.Venue)

	best, ok = r.BestFor("lending")
	require.True(t, ok)
	assert.Equal(t, "near:burrow", best.Venue)

	// Untagged observations land in the default bucket.
	best, ok = r.BestFor("")
	require.True(t, ok)
	assert.Equal(t, "home", best.Venue)

	assert.True(t, r.Leads("gateway", "gateway:aurora"))
	assert.False(t, r.Leads("gateway", "gateway:base"))
	assert.False(t, r.Leads("missing", "home"))
}

func TestRank_TieKeepsFirstSeen(t *testing.T) {
	r := Rank([]domain.YieldOpportunity{
		opp("venue-a", 5.0, "gateway"),
		opp("venue-b", 5.0, "gateway"),
	})

	best, ok := r.BestFor("gateway")
	require.True(t, ok)
	assert.Equal(t, "venue-a", best.Venue)

	// Same input, same result.
	again := Rank([]domain.YieldOpportunity{
		opp("venue-a", 5.0, "gateway"),
		opp("venue-b", 5.0, "gateway"),
	})
	assert.Equal(t, r.All, again.All)
	assert.Equal(t, r.BestPerBucket, again.BestPerBucket)
}

func TestRank_Empty(t *testing.T) {
	r := Rank(nil)
	assert.Nil(t, r.Best)
	assert.Empty(t, r.All)

	_, ok := r.BestFor("gateway")
	assert.False(t, ok)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []domain.YieldOpportunity{
		opp("low", 1.0, ""),
		opp("high", 9.0, ""),
	}
	Rank(in)
	assert.Equal(t, "low", in[0].Venue)
}
