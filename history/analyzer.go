// Package history keeps the outcome log of evaluated votes and derives
// threshold tuning hints from it.
package history

import (
	"sync"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

// Analyzer is an append-only log of vote outcomes
type Analyzer struct {
	mu      sync.RWMutex
	records []types.VoteRecord
}

// NewAnalyzer creates an empty analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{records: make([]types.VoteRecord, 0)}
}

// RecordVote appends an outcome record
func (a *Analyzer) RecordVote(record types.VoteRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
}

// Records returns a copy of the log in insertion order
func (a *Analyzer) Records() []types.VoteRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]types.VoteRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Len returns the number of records
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// AverageMargin returns the mean of weight - threshold, or 0 with no records
func (a *Analyzer) AverageMargin() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return averageMargin(a.records)
}

func averageMargin(records []types.VoteRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range records {
		total += r.Margin()
	}
	return total / float64(len(records))
}

// SuggestedBaseThreshold returns a base threshold for future proposals:
// raised when votes usually fail, the default otherwise. It is a hint only.
func (a *Analyzer) SuggestedBaseThreshold() float64 {
	return suggest(a.AverageMargin())
}

func suggest(margin float64) float64 {
	if margin < 0 {
		return types.RaisedBaseThreshold
	}
	return types.DefaultBaseThreshold
}

// Stats summarizes the outcome log
type Stats struct {
	Total         int
	Passed        int
	Failed        int
	PassRate      float64
	AverageMargin float64
	Suggested     float64
}

// Stats returns a summary of all records
func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{Total: len(a.records)}
	for _, r := range a.records {
		if r.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.PassRate = float64(stats.Passed) / float64(stats.Total)
	}
	stats.AverageMargin = averageMargin(a.records)
	stats.Suggested = suggest(stats.AverageMargin)
	return stats
}
