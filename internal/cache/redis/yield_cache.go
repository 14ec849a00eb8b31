package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// YieldCache implements domain.YieldCache using Redis hashes. Each venue's
// last observation is stored at key "yield:{venue}" with fields "pct",
// "conf", "tag", and "ts" (Unix nanosecond timestamp). Entries expire so a
// venue that stops reporting eventually drops out of the fallback path.
type YieldCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewYieldCache creates a YieldCache backed by the given Client. A zero ttl
// keeps entries forever.
func NewYieldCache(c *Client, ttl time.Duration) *YieldCache {
	return &YieldCache{rdb: c.Underlying(), ttl: ttl}
}

func yieldKey(venue string) string {
	return "yield:" + venue
}

// SetYield stores the latest observation for its venue.
func (yc *YieldCache) SetYield(ctx context.Context, o domain.YieldOpportunity) error {
	key := yieldKey(o.Venue)
	fields := map[string]interface{}{
		"pct":  strconv.FormatFloat(o.YieldPct, 'f', -1, 64),
		"conf": strconv.FormatFloat(o.Confidence, 'f', -1, 64),
		"tag":  o.StrategyTag,
		"ts":   strconv.FormatInt(o.ObservedAt.UnixNano(), 10),
	}

	pipe := yc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if yc.ttl > 0 {
		pipe.Expire(ctx, key, yc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set yield %s: %w", o.Venue, err)
	}
	return nil
}

// GetYield retrieves the last observation for a venue. The returned
// opportunity is marked with SourceCached and a dampened confidence since the
// value may be stale. It returns domain.ErrNotFound when the key does not
// exist.
func (yc *YieldCache) GetYield(ctx context.Context, venue string) (domain.YieldOpportunity, error) {
	vals, err := yc.rdb.HGetAll(ctx, yieldKey(venue)).Result()
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("redis: get yield %s: %w", venue, err)
	}
	if len(vals) == 0 {
		return domain.YieldOpportunity{}, domain.ErrNotFound
	}

	pct, err := strconv.ParseFloat(vals["pct"], 64)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("redis: parse yield pct %s: %w", venue, err)
	}
	conf, err := strconv.ParseFloat(vals["conf"], 64)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("redis: parse yield conf %s: %w", venue, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.YieldOpportunity{}, fmt.Errorf("redis: parse yield ts %s: %w", venue, err)
	}

	if conf > 0.5 {
		conf = 0.5
	}
	return domain.YieldOpportunity{
		Venue:       venue,
		YieldPct:    pct,
		Confidence:  conf,
		Source:      domain.SourceCached,
		StrategyTag: vals["tag"],
		ObservedAt:  time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.YieldCache = (*YieldCache)(nil)
