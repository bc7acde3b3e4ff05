// Package decay computes age-discounted vote weights.
package decay

import (
	"errors"
	"math"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

var (
	// ErrNegativeRate is returned when a decay rate is negative
	ErrNegativeRate = errors.New("decay rate must be non-negative")

	// ErrInvalidMultiplier is returned when a step multiplier is outside [0, 1]
	ErrInvalidMultiplier = errors.New("step multiplier must be within [0, 1]")

	// ErrUnorderedSteps is returned when step thresholds are not ascending
	ErrUnorderedSteps = errors.New("step thresholds must be ascending")
)

// Step is a stepped-decay breakpoint: once Threshold seconds have elapsed
// the weight is scaled by Multiplier
type Step struct {
	Threshold  float64
	Multiplier float64
}

// Model is a decay model. Kind selects which of Rate or Steps applies.
type Model struct {
	Kind  types.DecayKind
	Rate  float64
	Steps []Step
}

// Linear returns a model losing rate weight per second
func Linear(rate float64) Model {
	return Model{Kind: types.DecayLinear, Rate: rate}
}

// Exponential returns a model decaying by e^(-rate*t)
func Exponential(rate float64) Model {
	return Model{Kind: types.DecayExponential, Rate: rate}
}

// Stepped returns a model scaling weight at fixed breakpoints
func Stepped(steps ...Step) Model {
	s := make([]Step, len(steps))
	copy(s, steps)
	return Model{Kind: types.DecayStepped, Steps: s}
}

// ForKind returns the pipeline policy model for a decay kind
func ForKind(kind types.DecayKind) Model {
	switch kind {
	case types.DecayExponential:
		return Exponential(types.ExponentialDecayRate)
	case types.DecayStepped:
		steps := make([]Step, len(types.SteppedDecaySteps))
		for i, s := range types.SteppedDecaySteps {
			steps[i] = Step{Threshold: s[0], Multiplier: s[1]}
		}
		return Stepped(steps...)
	default:
		return Linear(types.LinearDecayRate)
	}
}

// ComputeWeight returns the decayed weight after elapsed seconds.
// The result never drops below DecayFloor of the original weight.
func (m Model) ComputeWeight(original, elapsed float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	floor := types.DecayFloor * original

	var decayed float64
	switch m.Kind {
	case types.DecayLinear:
		decayed = original - m.Rate*elapsed
	case types.DecayExponential:
		decayed = original * math.Exp(-m.Rate*elapsed)
	case types.DecayStepped:
		multiplier := 1.0
		// Later steps override earlier ones
		for _, s := range m.Steps {
			if elapsed >= s.Threshold {
				multiplier = s.Multiplier
			}
		}
		decayed = original * multiplier
	default:
		decayed = original
	}

	return math.Max(decayed, floor)
}

// Validate checks that the model can only discount weight
func (m Model) Validate() error {
	switch m.Kind {
	case types.DecayLinear, types.DecayExponential:
		if m.Rate < 0 || math.IsNaN(m.Rate) {
			return ErrNegativeRate
		}
	case types.DecayStepped:
		for i, s := range m.Steps {
			if s.Multiplier < 0 || s.Multiplier > 1 {
				return ErrInvalidMultiplier
			}
			if i > 0 && s.Threshold < m.Steps[i-1].Threshold {
				return ErrUnorderedSteps
			}
		}
	}
	return nil
}

// TimeToFloor returns the seconds until a vote of the given original weight
// reaches the floor. Stepped models report the first breakpoint at or below
// the floor, or +Inf.
func (m Model) TimeToFloor(original float64) float64 {
	switch m.Kind {
	case types.DecayLinear:
		if m.Rate <= 0 {
			return math.Inf(1)
		}
		return (1 - types.DecayFloor) * original / m.Rate
	case types.DecayExponential:
		if m.Rate <= 0 {
			return math.Inf(1)
		}
		return -math.Log(types.DecayFloor) / m.Rate
	case types.DecayStepped:
		for _, s := range m.Steps {
			if s.Multiplier <= types.DecayFloor {
				return s.Threshold
			}
		}
	}
	return math.Inf(1)
}

// HalfLife returns the seconds until a vote of the given original weight
// halves, or +Inf if it never does
func (m Model) HalfLife(original float64) float64 {
	switch m.Kind {
	case types.DecayLinear:
		if m.Rate <= 0 {
			return math.Inf(1)
		}
		return 0.5 * original / m.Rate
	case types.DecayExponential:
		if m.Rate <= 0 {
			return math.Inf(1)
		}
		return math.Ln2 / m.Rate
	case types.DecayStepped:
		for _, s := range m.Steps {
			if s.Multiplier <= 0.5 {
				return s.Threshold
			}
		}
	}
	return math.Inf(1)
}
