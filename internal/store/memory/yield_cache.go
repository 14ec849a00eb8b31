package memory

import (
	"context"
	"sync"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// YieldCache is an in-memory domain.YieldCache keyed by venue.
type YieldCache struct {
	mu   sync.RWMutex
	rows map[string]domain.YieldOpportunity
}

// NewYieldCache returns an empty YieldCache.
func NewYieldCache() *YieldCache {
	return &YieldCache{rows: make(map[string]domain.YieldOpportunity)}
}

// SetYield stores the latest observation for its venue.
func (c *YieldCache) SetYield(_ context.Context, o domain.YieldOpportunity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[o.Venue] = o
	return nil
}

// GetYield returns the last observation for venue, or ErrNotFound. A cache
// read is a stale value: confidence is clamped to 0.5 and the source is
// rewritten to cached.
func (c *YieldCache) GetYield(_ context.Context, venue string) (domain.YieldOpportunity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.rows[venue]
	if !ok {
		return domain.YieldOpportunity{}, domain.ErrNotFound
	}
	if o.Confidence > 0.5 {
		o.Confidence = 0.5
	}
	o.Source = domain.SourceCached
	return o, nil
}

var _ domain.YieldCache = (*YieldCache)(nil)
