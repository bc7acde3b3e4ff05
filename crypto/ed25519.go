package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

// Ed25519KeyPair is an Ed25519 signing key with its public half
type Ed25519KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	return GenerateEd25519KeyPairWithReader(rand.Reader)
}

// GenerateEd25519KeyPairWithReader generates an Ed25519 key pair using a specific random source
func GenerateEd25519KeyPairWithReader(reader io.Reader) (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// GenerateDeterministicEd25519KeyPair derives a key pair from a seed
func GenerateDeterministicEd25519KeyPair(seed []byte) *Ed25519KeyPair {
	h := sha256.Sum256(seed)
	priv := ed25519.NewKeyFromSeed(h[:])
	return &Ed25519KeyPair{
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}
}

// Ed25519KeyPairFromSeed rebuilds a key pair from a 32-byte private seed
func Ed25519KeyPairFromSeed(seed []byte) (*Ed25519KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSecretKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519KeyPair{
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Scheme implements Signer
func (kp *Ed25519KeyPair) Scheme() types.Scheme {
	return types.SchemeEd25519
}

// PublicKeyBytes implements Signer
func (kp *Ed25519KeyPair) PublicKeyBytes() []byte {
	out := make([]byte, ed25519.PublicKeySize)
	copy(out, kp.PublicKey)
	return out
}

// Sign implements Signer. Ed25519 signatures are deterministic.
func (kp *Ed25519KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, message)
}

// VerifyEd25519 checks an Ed25519 signature, rejecting malformed encodings
func VerifyEd25519(pk []byte, message []byte, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), message, sig)
}
