// Package weight turns verified votes into effective weights:
// age decay first, then the validator's trust bonus.
package weight

import (
	"sync"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

// Cache memoizes computed weights and keeps the append-only weight history.
// It is owned by the caller and passed to Calculate; one cache may be shared
// by several proposals' engines.
type Cache struct {
	mu      sync.RWMutex
	policy  types.CacheKeyPolicy
	weights map[Key]float64
	history []types.WeightEntry
}

// NewCache creates an empty cache using the given key policy
func NewCache(policy types.CacheKeyPolicy) *Cache {
	if policy == "" {
		policy = types.KeyByVoter
	}
	return &Cache{
		policy:  policy,
		weights: make(map[Key]float64),
		history: make([]types.WeightEntry, 0),
	}
}

// Key identifies a memoized weight. Proposal is empty under KeyByVoter.
type Key struct {
	Voter    string
	Proposal string
}

// Policy returns the cache key policy
func (c *Cache) Policy() types.CacheKeyPolicy {
	return c.policy
}

// Key returns the memo key for a vote under the cache's policy
func (c *Cache) Key(vote *types.SignedVote) Key {
	if c.policy == types.KeyByVoterProposal {
		return Key{Voter: vote.VoterID, Proposal: vote.ProposalID}
	}
	return Key{Voter: vote.VoterID}
}

// Lookup returns the memoized weight for a vote, if any
func (c *Cache) Lookup(vote *types.SignedVote) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.weights[c.Key(vote)]
	return w, ok
}

// getOrCompute returns the memoized weight or stores compute()'s result and
// appends a history entry, all under one lock so concurrent callers never
// compute the same key twice. fresh is true when compute ran.
func (c *Cache) getOrCompute(vote *types.SignedVote, entry types.WeightEntry, compute func() float64) (w float64, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(vote)
	if w, ok := c.weights[key]; ok {
		return w, false
	}

	w = compute()
	c.weights[key] = w
	entry.Weight = w
	c.history = append(c.history, entry)
	return w, true
}

// History returns a copy of the weight history in insertion order
func (c *Cache) History() []types.WeightEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.WeightEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Weights returns a copy of the memo table
func (c *Cache) Weights() map[Key]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[Key]float64, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}

// Len returns the number of memoized weights
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.weights)
}

// Clear drops the memo and the history together
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.weights = make(map[Key]float64)
	c.history = make([]types.WeightEntry, 0)
}
