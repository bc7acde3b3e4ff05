package types

import (
	"encoding/hex"
	"strings"
	"time"
)

// DecayKind selects the decay model applied to a vote
type DecayKind int

const (
	DecayLinear DecayKind = iota
	DecayExponential
	DecayStepped
)

// String returns the lowercase name of the decay kind
func (k DecayKind) String() string {
	switch k {
	case DecayExponential:
		return "exponential"
	case DecayStepped:
		return "stepped"
	default:
		return "linear"
	}
}

// ParseDecayKind parses a decay kind name. Unknown input falls back to linear.
func ParseDecayKind(s string) DecayKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exponential", "exp":
		return DecayExponential
	case "stepped", "step":
		return DecayStepped
	default:
		return DecayLinear
	}
}

// ProposalType is the criticality class of a proposal
type ProposalType int

const (
	ProposalNormal ProposalType = iota
	ProposalCritical
)

// String returns the lowercase name of the proposal type
func (p ProposalType) String() string {
	if p == ProposalCritical {
		return "critical"
	}
	return "normal"
}

// ParseProposalType parses a proposal type name. Unknown input falls back to normal.
func ParseProposalType(s string) ProposalType {
	if strings.ToLower(strings.TrimSpace(s)) == "critical" {
		return ProposalCritical
	}
	return ProposalNormal
}

// SignedVote is a validator's authenticated vote on a proposal.
// The signature covers VoterID, ProposalID and Timestamp.
type SignedVote struct {
	VoterID        string
	ProposalID     string
	Timestamp      time.Time
	OriginalWeight float64
	DecayKind      DecayKind
	Scheme         Scheme
	Signature      []byte
	PublicKey      []byte
}

// PublicKeyHex returns the hex encoding of the voter's public key
func (v *SignedVote) PublicKeyHex() string {
	return hex.EncodeToString(v.PublicKey)
}

// VoteRecord is an audit entry for an evaluated vote
type VoteRecord struct {
	ID         string    `json:"id"`
	VoteID     string    `json:"vote_id"`
	ProposalID string    `json:"proposal_id"`
	Weight     float64   `json:"weight"`
	Threshold  float64   `json:"threshold"`
	Passed     bool      `json:"passed"`
	Timestamp  time.Time `json:"timestamp"`
}

// Margin returns how far the weight cleared (or missed) the threshold
func (r VoteRecord) Margin() float64 {
	return r.Weight - r.Threshold
}

// WeightEntry is an audit entry written when a vote weight is computed
type WeightEntry struct {
	VoteID     string    `json:"vote_id"`
	ProposalID string    `json:"proposal_id"`
	Weight     float64   `json:"weight"`
	Timestamp  time.Time `json:"timestamp"`
}
