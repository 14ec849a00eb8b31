package strategy

import (
	"sort"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Ranking is the merged, ordered view of one cycle's observations. There is
// no cross-bucket arbitration: each plugin compares its own venue against the
// best entry of its bucket.
type Ranking struct {
	// All holds every observation sorted descending by yield.
	All []domain.YieldOpportunity
	// Best is the global highest-yield observation, nil when empty.
	Best *domain.YieldOpportunity
	// BestPerBucket keeps the highest-yield entry per strategy tag, ties
	// broken by first-seen order.
	BestPerBucket map[string]domain.YieldOpportunity
}

// Rank merges and orders the cycle's observations. Ranking the same input
// twice yields the same result.
func Rank(opps []domain.YieldOpportunity) Ranking {
	all := make([]domain.YieldOpportunity, len(opps))
	copy(all, opps)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].YieldPct > all[j].YieldPct
	})

	best := make(map[string]domain.YieldOpportunity, 4)
	for _, o := range opps {
		b := o.Bucket()
		// Strictly greater keeps the first-seen entry on ties.
		if cur, ok := best[b]; !ok || o.YieldPct > cur.YieldPct {
			best[b] = o
		}
	}

	r := Ranking{All: all, BestPerBucket: best}
	if len(all) > 0 {
		top := all[0]
		r.Best = &top
	}
	return r
}

// BestFor returns the top entry for the given strategy tag's bucket.
func (r Ranking) BestFor(tag string) (domain.YieldOpportunity, bool) {
	if tag == "" {
		tag = domain.DefaultBucket
	}
	o, ok := r.BestPerBucket[tag]
	return o, ok
}

// Leads reports whether the observation for venue is the best entry of the
// given bucket.
func (r Ranking) Leads(tag, venue string) bool {
	o, ok := r.BestFor(tag)
	return ok && o.Venue == venue
}
