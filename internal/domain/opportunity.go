package domain

import "time"

// Observation sources, in decreasing order of trust. A monitor that cannot
// reach its live feed degrades to the cached value and finally to a synthetic
// observation rather than failing the cycle.
const (
	SourceLive      = "live"
	SourceCached    = "cached"
	SourceSynthetic = "synthetic"
)

// DefaultBucket is the ranking bucket for opportunities without a strategy tag.
const DefaultBucket = "any"

// YieldOpportunity is a single venue observation produced by a plugin's
// Monitor call. Opportunities are ephemeral: a fresh set is produced each
// cycle and never persisted.
type YieldOpportunity struct {
	Venue       string
	YieldPct    float64
	Confidence  float64 // 0..1
	Source      string  // live, cached, or synthetic
	StrategyTag string  // ranking bucket; empty means DefaultBucket
	ObservedAt  time.Time
}

// Bucket returns the ranking bucket for this opportunity.
func (o YieldOpportunity) Bucket() string {
	if o.StrategyTag == "" {
		return DefaultBucket
	}
	return o.StrategyTag
}
