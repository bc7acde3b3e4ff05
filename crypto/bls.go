package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/buzzy-coder/time-decay-consensus/types"
)

var (
	// ErrHashToCurveFailed is returned when hash-to-curve operation fails
	ErrHashToCurveFailed = errors.New("hash-to-curve operation failed")

	// Domain separation tag for vote signatures
	dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_TDC_VOTE")
)

// BLSKeyPair represents a BLS12-381 key pair
type BLSKeyPair struct {
	SecretKey types.SecretKey
	PublicKey types.PublicKey
}

// G1Generator returns the generator point for G1
func G1Generator() bls12381.G1Affine {
	_, _, g1, _ := bls12381.Generators()
	return g1
}

// GenerateBLSKeyPair generates a new BLS key pair
func GenerateBLSKeyPair() (*BLSKeyPair, error) {
	return GenerateBLSKeyPairWithReader(rand.Reader)
}

// GenerateBLSKeyPairWithReader generates a BLS key pair using a specific random source
func GenerateBLSKeyPairWithReader(reader io.Reader) (*BLSKeyPair, error) {
	var skBytes [32]byte
	if _, err := io.ReadFull(reader, skBytes[:]); err != nil {
		return nil, err
	}
	var sk fr.Element
	sk.SetBytes(skBytes[:])
	if sk.IsZero() {
		return nil, ErrInvalidSecretKey
	}
	return blsKeyPairFromScalar(sk), nil
}

// GenerateDeterministicBLSKeyPair derives a key pair from a seed
func GenerateDeterministicBLSKeyPair(seed []byte) (*BLSKeyPair, error) {
	h := sha256.Sum256(seed)

	var sk fr.Element
	sk.SetBytes(h[:])
	if sk.IsZero() {
		return nil, ErrInvalidSecretKey
	}
	return blsKeyPairFromScalar(sk), nil
}

// GenerateNBLSKeyPairs generates n key pairs deterministically for testing
func GenerateNBLSKeyPairs(n int) ([]*BLSKeyPair, error) {
	pairs := make([]*BLSKeyPair, n)
	for i := 0; i < n; i++ {
		seed := make([]byte, 8)
		binary.BigEndian.PutUint64(seed, uint64(i))
		kp, err := GenerateDeterministicBLSKeyPair(seed)
		if err != nil {
			return nil, err
		}
		pairs[i] = kp
	}
	return pairs, nil
}

func blsKeyPairFromScalar(sk fr.Element) *BLSKeyPair {
	var secretKey types.SecretKey
	skBytes := sk.Bytes()
	copy(secretKey[:], skBytes[:])

	return &BLSKeyPair{
		SecretKey: secretKey,
		PublicKey: PublicKeyFromSecret(secretKey),
	}
}

// Scheme implements Signer
func (kp *BLSKeyPair) Scheme() types.Scheme {
	return types.SchemeBLS
}

// PublicKeyBytes implements Signer
func (kp *BLSKeyPair) PublicKeyBytes() []byte {
	out := make([]byte, types.BLSPublicKeySize)
	copy(out, kp.PublicKey[:])
	return out
}

// Sign implements Signer
func (kp *BLSKeyPair) Sign(message []byte) []byte {
	sig := SignBLS(kp.SecretKey, message)
	return sig[:]
}

// PublicKeyFromSecret derives a public key from a secret key
func PublicKeyFromSecret(sk types.SecretKey) types.PublicKey {
	scalar := secretKeyToScalar(sk)
	g1 := G1Generator()
	var pk bls12381.G1Affine
	pk.ScalarMultiplication(&g1, scalar.BigInt(new(big.Int)))

	var publicKey types.PublicKey
	pkBytes := pk.Bytes()
	copy(publicKey[:], pkBytes[:])
	return publicKey
}

func secretKeyToScalar(sk types.SecretKey) fr.Element {
	var scalar fr.Element
	scalar.SetBytes(sk[:])
	return scalar
}

func publicKeyToG1(pk []byte) (bls12381.G1Affine, error) {
	var g1 bls12381.G1Affine
	if len(pk) != types.BLSPublicKeySize {
		return g1, ErrInvalidPublicKey
	}
	if _, err := g1.SetBytes(pk); err != nil {
		return g1, ErrInvalidPublicKey
	}
	return g1, nil
}

func signatureToG2(sig []byte) (bls12381.G2Affine, error) {
	var g2 bls12381.G2Affine
	if len(sig) != types.BLSSignatureSize {
		return g2, ErrInvalidSignature
	}
	if _, err := g2.SetBytes(sig); err != nil {
		return g2, ErrInvalidSignature
	}
	return g2, nil
}

func hashToG2(message []byte) (bls12381.G2Affine, error) {
	point, err := bls12381.HashToG2(message, dst)
	if err != nil {
		log.Printf("[BLS] HashToG2 failed for message of length %d: %v", len(message), err)
		return bls12381.G2Affine{}, ErrHashToCurveFailed
	}
	return point, nil
}

// SignBLS signs a message using BLS12-381.
// Signature = sk * H(message) where H maps to G2.
// Returns a zero signature if hash-to-curve fails; it never verifies.
func SignBLS(sk types.SecretKey, message []byte) types.Signature {
	scalar := secretKeyToScalar(sk)

	msgPoint, err := hashToG2(message)
	if err != nil {
		return types.Signature{}
	}

	var sig bls12381.G2Affine
	sig.ScalarMultiplication(&msgPoint, scalar.BigInt(new(big.Int)))

	var signature types.Signature
	sigBytes := sig.Bytes()
	copy(signature[:], sigBytes[:])

	return signature
}

// VerifyBLS verifies a BLS signature using the pairing check
// e(pk, H(msg)) == e(G1, sig)
func VerifyBLS(pk []byte, message []byte, sig []byte) bool {
	if isZero(sig) || isZero(pk) {
		return false
	}

	pkPoint, err := publicKeyToG1(pk)
	if err != nil {
		return false
	}

	sigPoint, err := signatureToG2(sig)
	if err != nil {
		return false
	}

	msgPoint, err := hashToG2(message)
	if err != nil {
		return false
	}

	g1 := G1Generator()
	var g1Neg bls12381.G1Affine
	g1Neg.Neg(&g1)

	// e(pk, H(msg)) * e(-G1, sig) == 1
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{pkPoint, g1Neg},
		[]bls12381.G2Affine{msgPoint, sigPoint},
	)
	if err != nil {
		return false
	}

	return ok
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
