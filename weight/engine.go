package weight

import (
	"log"
	"time"

	"github.com/buzzy-coder/time-decay-consensus/decay"
	"github.com/buzzy-coder/time-decay-consensus/trust"
	"github.com/buzzy-coder/time-decay-consensus/types"
)

// VoteAge returns the whole seconds between the vote timestamp and now,
// clamped at zero
func VoteAge(vote *types.SignedVote, now time.Time) float64 {
	age := int64(now.Sub(vote.Timestamp) / time.Second)
	if age < 0 {
		return 0
	}
	return float64(age)
}

// Effective computes a vote's weight without touching any cache:
// policy decay for the vote's kind, then the trust bonus when table is non-nil.
func Effective(vote *types.SignedVote, now time.Time, table *trust.Table) float64 {
	w := decay.ForKind(vote.DecayKind).ComputeWeight(vote.OriginalWeight, VoteAge(vote, now))
	if table != nil {
		w *= table.Bonus(vote.VoterID)
	}
	return w
}

// Calculate returns the vote's effective weight, memoized in cache.
// A cache hit returns the stored weight unchanged; a miss computes it,
// stores it and appends a history entry.
func Calculate(cache *Cache, vote *types.SignedVote, now time.Time, table *trust.Table) float64 {
	w, _ := Resolve(cache, vote, now, table)
	return w
}

// Resolve is Calculate that also returns the history entry appended on a
// cache miss, or nil on a hit
func Resolve(cache *Cache, vote *types.SignedVote, now time.Time, table *trust.Table) (float64, *types.WeightEntry) {
	entry := types.WeightEntry{
		VoteID:     vote.VoterID,
		ProposalID: vote.ProposalID,
		Timestamp:  now,
	}
	w, fresh := cache.getOrCompute(vote, entry, func() float64 {
		return Effective(vote, now, table)
	})
	if !fresh {
		return w, nil
	}
	entry.Weight = w
	return w, &entry
}

// BatchCalculate computes weights for votes in order
func BatchCalculate(cache *Cache, votes []*types.SignedVote, now time.Time, table *trust.Table) []float64 {
	weights := make([]float64, len(votes))
	for i, v := range votes {
		weights[i] = Calculate(cache, v, now, table)
	}
	return weights
}

// Engine bundles a cache with the calculation functions
type Engine struct {
	cache *Cache
}

// NewEngine creates an engine with its own cache
func NewEngine(policy types.CacheKeyPolicy) *Engine {
	return &Engine{cache: NewCache(policy)}
}

// NewEngineWithCache creates an engine over an existing cache
func NewEngineWithCache(cache *Cache) *Engine {
	return &Engine{cache: cache}
}

// Cache returns the engine's cache
func (e *Engine) Cache() *Cache {
	return e.cache
}

// CalculateWeight computes (or recalls) a vote's weight
func (e *Engine) CalculateWeight(vote *types.SignedVote, now time.Time, table *trust.Table) float64 {
	return Calculate(e.cache, vote, now, table)
}

// BatchCalculate computes weights for votes in order
func (e *Engine) BatchCalculate(votes []*types.SignedVote, now time.Time, table *trust.Table) []float64 {
	return BatchCalculate(e.cache, votes, now, table)
}

// History returns the weight history
func (e *Engine) History() []types.WeightEntry {
	return e.cache.History()
}

// ClearCache resets the memo and the weight history
func (e *Engine) ClearCache() {
	e.cache.Clear()
	log.Printf("[Weight] cache and history cleared")
}
