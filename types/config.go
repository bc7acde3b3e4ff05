// Package types defines core data structures and configuration for the
// time-decay governance engine.
package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Decay policy. These are pipeline-level constants, not caller-configurable.
const (
	// LinearDecayRate is the weight lost per second of vote age
	LinearDecayRate = 0.001

	// ExponentialDecayRate is the exponent rate per second of vote age
	ExponentialDecayRate = 0.005

	// DecayFloor is the fraction of the original weight a vote never drops below
	DecayFloor = 0.1
)

// SteppedDecaySteps are the stepped-decay breakpoints (seconds, multiplier)
var SteppedDecaySteps = [][2]float64{
	{60, 0.8},
	{180, 0.5},
	{300, 0.2},
}

// Authentication configuration
const (
	// ClockSkewSecs is how far in the future a vote timestamp may be
	ClockSkewSecs = 5

	// DefaultMaxVoteAgeSecs is the default maximum vote age accepted by verification
	DefaultMaxVoteAgeSecs = 300
)

// Trust configuration
const (
	// NeutralBonus is the trust multiplier for unknown validators
	NeutralBonus = 1.0
)

// Voting window configuration
const (
	// ShortWindowSecs is the duration of a short voting window (5 minutes)
	ShortWindowSecs = 300

	// MediumWindowSecs is the duration of a medium voting window (30 minutes)
	MediumWindowSecs = 1800

	// LongWindowSecs is the duration of a long voting window (2 hours)
	LongWindowSecs = 7200

	// ExtensionLeadSecs is how close to the deadline a vote must be to trigger extension
	ExtensionLeadSecs = 20

	// NearMissRatio is the fraction of the threshold that counts as a near miss
	NearMissRatio = 0.9
)

// History analysis configuration
const (
	// RaisedBaseThreshold is suggested when votes usually fail
	RaisedBaseThreshold = 0.55

	// DefaultBaseThreshold is suggested when votes usually pass
	DefaultBaseThreshold = 0.50
)

// Proposal presets
const (
	NormalBaseThreshold = 0.51
	NormalCeiling       = 0.90
	NormalLinearRate    = 0.01
	NormalMinVoteCount  = 3

	CriticalBaseThreshold = 0.75
	CriticalCeiling       = 0.95
	CriticalLinearRate    = 0.02
	CriticalMinVoteCount  = 5

	// AdaptiveMinVotes is the participation level below which the adaptive
	// profile accelerates escalation
	AdaptiveMinVotes = 3
)

// CacheKeyPolicy selects how the weight memo is keyed
type CacheKeyPolicy string

const (
	// KeyByVoter memoizes one weight per voter across all proposals
	KeyByVoter CacheKeyPolicy = "voter"

	// KeyByVoterProposal memoizes one weight per (voter, proposal)
	KeyByVoterProposal CacheKeyPolicy = "voter_proposal"
)

// ThresholdStart selects the instant threshold escalation is measured from
type ThresholdStart string

const (
	// ThresholdFromVote escalates with the age of each vote
	ThresholdFromVote ThresholdStart = "vote"

	// ThresholdFromWindow escalates with the time since the window opened
	ThresholdFromWindow ThresholdStart = "window"
)

// Config holds runtime configuration for a governance engine
type Config struct {
	// Authentication
	MaxVoteAgeSecs int64 `yaml:"max_vote_age_secs"`

	// Window
	GraceSecs     uint64 `yaml:"grace_secs"`
	ExtensionSecs uint64 `yaml:"extension_secs"`
	MaxExtensions int    `yaml:"max_extensions"`

	// Weight memo
	CacheKeyPolicy CacheKeyPolicy `yaml:"cache_key_policy"`

	// Threshold escalation
	ThresholdStart ThresholdStart `yaml:"threshold_start"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxVoteAgeSecs: DefaultMaxVoteAgeSecs,
		GraceSecs:      10,
		ExtensionSecs:  30,
		MaxExtensions:  3,
		CacheKeyPolicy: KeyByVoter,
		ThresholdStart: ThresholdFromVote,
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.CacheKeyPolicy {
	case KeyByVoter, KeyByVoterProposal:
	case "":
		cfg.CacheKeyPolicy = KeyByVoter
	default:
		return cfg, fmt.Errorf("parse config: unknown cache_key_policy %q", cfg.CacheKeyPolicy)
	}

	switch cfg.ThresholdStart {
	case ThresholdFromVote, ThresholdFromWindow:
	case "":
		cfg.ThresholdStart = ThresholdFromVote
	default:
		return cfg, fmt.Errorf("parse config: unknown threshold_start %q", cfg.ThresholdStart)
	}

	return cfg, nil
}
