// Package threshold computes the approval fraction a proposal requires,
// escalating over the voting period.
package threshold

import (
	"errors"
	"math"
	"time"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

var (
	// ErrInvalidBounds is returned when base or ceiling are out of order or outside [0, 1]
	ErrInvalidBounds = errors.New("threshold bounds must satisfy 0 <= base <= ceiling <= 1")

	// ErrNegativeRate is returned when an escalation rate is negative
	ErrNegativeRate = errors.New("escalation rate must be non-negative")
)

// PatternKind selects the escalation curve
type PatternKind int

const (
	PatternLinear PatternKind = iota
	PatternExponential
	PatternSigmoid
)

// Pattern is an escalation curve over elapsed seconds.
// Linear uses Rate, Exponential uses Factor, Sigmoid uses K and Midpoint.
type Pattern struct {
	Kind     PatternKind
	Rate     float64
	Factor   float64
	K        float64
	Midpoint float64
}

// LinearPattern raises the threshold by rate per second
func LinearPattern(rate float64) Pattern {
	return Pattern{Kind: PatternLinear, Rate: rate}
}

// ExponentialPattern raises the threshold by 1 - e^(-factor*t)
func ExponentialPattern(factor float64) Pattern {
	return Pattern{Kind: PatternExponential, Factor: factor}
}

// SigmoidPattern moves the threshold along an S-curve centered on midpoint
func SigmoidPattern(k, midpoint float64) Pattern {
	return Pattern{Kind: PatternSigmoid, K: k, Midpoint: midpoint}
}

// Profile rescales elapsed time before the pattern is applied
type Profile int

const (
	// Conservative leaves elapsed time unscaled
	Conservative Profile = iota

	// Aggressive doubles elapsed time
	Aggressive

	// Adaptive triples elapsed time while participation is low
	Adaptive
)

// String returns the profile name
func (p Profile) String() string {
	switch p {
	case Aggressive:
		return "aggressive"
	case Adaptive:
		return "adaptive"
	default:
		return "conservative"
	}
}

// ScaleElapsed applies a progression profile to elapsed seconds
func ScaleElapsed(profile Profile, elapsed float64, totalVotes uint64) float64 {
	switch profile {
	case Aggressive:
		return elapsed * 2
	case Adaptive:
		if totalVotes < types.AdaptiveMinVotes {
			return elapsed * 3
		}
		return elapsed
	default:
		return elapsed
	}
}

// Escalator holds a proposal's threshold configuration.
// TotalVotes is updated by the caller as votes arrive; the escalator's
// methods never modify it.
type Escalator struct {
	BaseThreshold     float64
	Ceiling           float64
	Pattern           Pattern
	EmergencyOverride bool
	Profile           Profile
	TotalVotes        uint64
	MinVoteCount      uint64
}

// ForProposalType returns the preset escalator for a proposal type
func ForProposalType(kind types.ProposalType) Escalator {
	if kind == types.ProposalCritical {
		return Escalator{
			BaseThreshold: types.CriticalBaseThreshold,
			Ceiling:       types.CriticalCeiling,
			Pattern:       LinearPattern(types.CriticalLinearRate),
			Profile:       Aggressive,
			MinVoteCount:  types.CriticalMinVoteCount,
		}
	}
	return Escalator{
		BaseThreshold: types.NormalBaseThreshold,
		Ceiling:       types.NormalCeiling,
		Pattern:       LinearPattern(types.NormalLinearRate),
		Profile:       Conservative,
		MinVoteCount:  types.NormalMinVoteCount,
	}
}

// Validate checks the bounds and curve parameters
func (e Escalator) Validate() error {
	if e.BaseThreshold < 0 || e.Ceiling > 1 || e.BaseThreshold > e.Ceiling ||
		math.IsNaN(e.BaseThreshold) || math.IsNaN(e.Ceiling) {
		return ErrInvalidBounds
	}
	switch e.Pattern.Kind {
	case PatternLinear:
		if e.Pattern.Rate < 0 {
			return ErrNegativeRate
		}
	case PatternExponential:
		if e.Pattern.Factor < 0 {
			return ErrNegativeRate
		}
	case PatternSigmoid:
		if e.Pattern.K < 0 {
			return ErrNegativeRate
		}
	}
	return nil
}

// WithEmergencyOverride returns a copy pinned at the ceiling
func (e Escalator) WithEmergencyOverride() Escalator {
	e.EmergencyOverride = true
	return e
}

// CurrentThreshold returns the required approval fraction after elapsed seconds
func (e Escalator) CurrentThreshold(elapsed float64) float64 {
	if e.EmergencyOverride {
		return e.Ceiling
	}
	if elapsed < 0 {
		elapsed = 0
	}

	switch e.Pattern.Kind {
	case PatternExponential:
		increase := 1 - math.Exp(-e.Pattern.Factor*elapsed)
		return math.Min(e.BaseThreshold+increase, e.Ceiling)
	case PatternSigmoid:
		sigmoid := 1 / (1 + math.Exp(-e.Pattern.K*(elapsed-e.Pattern.Midpoint)))
		return e.BaseThreshold + sigmoid*(e.Ceiling-e.BaseThreshold)
	default:
		return math.Min(e.BaseThreshold+e.Pattern.Rate*elapsed, e.Ceiling)
	}
}

// Elapsed returns the whole seconds from start to now, clamped at zero
func Elapsed(now, start time.Time) float64 {
	secs := int64(now.Sub(start) / time.Second)
	if secs < 0 {
		return 0
	}
	return float64(secs)
}

// ThresholdWithProfile returns the threshold at now for a period opened at start,
// with elapsed time rescaled by the escalator's profile
func (e Escalator) ThresholdWithProfile(now, start time.Time) float64 {
	scaled := ScaleElapsed(e.Profile, Elapsed(now, start), e.TotalVotes)
	return e.CurrentThreshold(scaled)
}

// IsThresholdMet reports whether weight clears required and participation
// has reached MinVoteCount
func (e Escalator) IsThresholdMet(weight, required float64) bool {
	return weight >= required && e.TotalVotes >= e.MinVoteCount
}
