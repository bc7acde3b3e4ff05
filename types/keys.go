package types

// Scheme identifies the signature scheme a vote was signed with
type Scheme uint8

const (
	// SchemeEd25519 uses 32-byte public keys and 64-byte signatures
	SchemeEd25519 Scheme = iota

	// SchemeBLS uses BLS12-381 with 48-byte public keys and 96-byte signatures
	SchemeBLS
)

// Key and signature sizes per scheme
const (
	Ed25519PublicKeySize = 32
	Ed25519SignatureSize = 64

	BLSPublicKeySize = 48
	BLSSignatureSize = 96
	BLSSecretKeySize = 32
)

// String returns the scheme name
func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeBLS:
		return "bls12-381"
	default:
		return "unknown"
	}
}

// ParseScheme parses a scheme name. Unknown input falls back to Ed25519.
func ParseScheme(s string) Scheme {
	switch s {
	case "bls", "bls12-381":
		return SchemeBLS
	default:
		return SchemeEd25519
	}
}

// PublicKeySize returns the encoded public key size for the scheme
func (s Scheme) PublicKeySize() int {
	if s == SchemeBLS {
		return BLSPublicKeySize
	}
	return Ed25519PublicKeySize
}

// SignatureSize returns the encoded signature size for the scheme
func (s Scheme) SignatureSize() int {
	if s == SchemeBLS {
		return BLSSignatureSize
	}
	return Ed25519SignatureSize
}

// PublicKey represents a BLS public key (48 bytes)
type PublicKey [BLSPublicKeySize]byte

// Signature represents a BLS signature (96 bytes)
type Signature [BLSSignatureSize]byte

// SecretKey represents a BLS secret key (32 bytes)
type SecretKey [BLSSecretKeySize]byte
