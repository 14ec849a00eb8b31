package feeds

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/domain"
	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

const syntheticConfidence = 0.25

// Observer produces one observation per venue with graceful degradation:
// live feed first, last cached value second, and a configured synthetic
// baseline last. Monitors never fail a cycle for want of data.
type Observer struct {
	client   *Client
	cache    domain.YieldCache
	baseline map[string]float64 // venue -> synthetic yield pct
	fallback float64            // synthetic pct for venues without a baseline
	logger   *slog.Logger
}

// NewObserver builds an Observer. client may be nil, in which case only the
// cached and synthetic paths are used (dry runs rely on this).
func NewObserver(client *Client, cache domain.YieldCache, baseline map[string]float64, fallback float64, logger *slog.Logger) *Observer {
	return &Observer{
		client:   client,
		cache:    cache,
		baseline: baseline,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "observer")),
	}
}

// Observe returns the best available yield figure for a venue. Live
// observations are written through to the cache.
func (o *Observer) Observe(ctx context.Context, venue, strategyTag string) domain.YieldOpportunity {
	if o.client != nil {
		opp, err := o.client.GetYield(ctx, venue)
		if err == nil {
			if opp.StrategyTag == "" {
				opp.StrategyTag = strategyTag
			}
			if o.cache != nil {
				if cacheErr := o.cache.SetYield(ctx, opp); cacheErr != nil {
					o.logger.Warn("cache write failed",
						slog.String("venue", venue),
						slog.String("error", cacheErr.Error()))
				}
			}
			return opp
		}
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("live feed unavailable, degrading",
				slog.String("venue", venue),
				slog.String("error", err.Error()))
		}
	}

	if o.cache != nil {
		opp, err := o.cache.GetYield(ctx, venue)
		if err == nil {
			if opp.StrategyTag == "" {
				opp.StrategyTag = strategyTag
			}
			return opp
		}
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("cache unavailable, degrading",
				slog.String("venue", venue),
				slog.String("error", err.Error()))
		}
	}

	return o.synthetic(venue, strategyTag)
}

func (o *Observer) synthetic(venue, strategyTag string) domain.YieldOpportunity {
	pct, ok := o.baseline[venue]
	if !ok {
		pct = o.fallback
	}
	return domain.YieldOpportunity{
		Venue:       venue,
		YieldPct:    pct,
		Confidence:  syntheticConfidence,
		Source:      domain.SourceSynthetic,
		StrategyTag: strategyTag,
		ObservedAt:  time.Now(),
	}
}

var _ strategy.Observer = (*Observer)(nil)
