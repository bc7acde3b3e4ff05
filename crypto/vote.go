// Package crypto authenticates governance votes.
// Votes are signed with Ed25519 by default; validators holding BLS12-381
// keys sign with gnark-crypto.
package crypto

import (
	"errors"
	"time"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

var (
	// ErrInvalidSignature is returned when signature verification fails
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTimestampExpired is returned when a vote is older than the allowed age
	ErrTimestampExpired = errors.New("timestamp is too old")

	// ErrTimestampInFuture is returned when a vote is dated beyond the clock-skew tolerance
	ErrTimestampInFuture = errors.New("timestamp is in the future")

	// ErrInvalidPublicKey is returned when a public key is invalid
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidSecretKey is returned when a secret key is invalid
	ErrInvalidSecretKey = errors.New("invalid secret key")
)

// Signer produces vote signatures for one validator key
type Signer interface {
	Scheme() types.Scheme
	PublicKeyBytes() []byte
	Sign(message []byte) []byte
}

// FormatTimestamp is the canonical textual form of a vote timestamp.
// Signer and verifier must agree on it byte for byte.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// CanonicalMessage returns the signed message "voter:proposal:timestamp"
func CanonicalMessage(voterID, proposalID string, ts time.Time) []byte {
	stamp := FormatTimestamp(ts)
	msg := make([]byte, 0, len(voterID)+len(proposalID)+len(stamp)+2)
	msg = append(msg, voterID...)
	msg = append(msg, ':')
	msg = append(msg, proposalID...)
	msg = append(msg, ':')
	msg = append(msg, stamp...)
	return msg
}

// SignVote signs the canonical vote message
func SignVote(voterID, proposalID string, ts time.Time, signer Signer) []byte {
	return signer.Sign(CanonicalMessage(voterID, proposalID, ts))
}

// NewSignedVote creates a signed vote
func NewSignedVote(
	voterID, proposalID string,
	originalWeight float64,
	ts time.Time,
	kind types.DecayKind,
	signer Signer,
) *types.SignedVote {
	return &types.SignedVote{
		VoterID:        voterID,
		ProposalID:     proposalID,
		Timestamp:      ts,
		OriginalWeight: originalWeight,
		DecayKind:      kind,
		Scheme:         signer.Scheme(),
		Signature:      SignVote(voterID, proposalID, ts, signer),
		PublicKey:      signer.PublicKeyBytes(),
	}
}

// VerifySignature checks a signature under the given scheme
func VerifySignature(scheme types.Scheme, pk, message, sig []byte) bool {
	switch scheme {
	case types.SchemeEd25519:
		return VerifyEd25519(pk, message, sig)
	case types.SchemeBLS:
		return VerifyBLS(pk, message, sig)
	default:
		return false
	}
}

// Verify checks a vote's timestamp and signature against the current wall clock
func Verify(vote *types.SignedVote, maxAgeSecs int64) error {
	return VerifyAt(vote, maxAgeSecs, time.Now())
}

// VerifyAt checks a vote's timestamp and signature as of now.
// Timestamp checks run before the signature check: a vote dated more than
// ClockSkewSecs ahead of now is ErrTimestampInFuture, one older than
// maxAgeSecs is ErrTimestampExpired.
func VerifyAt(vote *types.SignedVote, maxAgeSecs int64, now time.Time) error {
	if vote == nil {
		return ErrInvalidSignature
	}

	// Whole seconds, truncated toward zero
	age := int64(now.Sub(vote.Timestamp) / time.Second)

	if age < -types.ClockSkewSecs {
		return ErrTimestampInFuture
	}
	if age > maxAgeSecs {
		return ErrTimestampExpired
	}

	msg := CanonicalMessage(vote.VoterID, vote.ProposalID, vote.Timestamp)
	if !VerifySignature(vote.Scheme, vote.PublicKey, msg, vote.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
