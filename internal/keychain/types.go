// Package keychain implements the multi-algorithm signer: a closed set of
// private/public key and signature variants, each with its own hashing and
// serialization discipline, plus a dense-handle in-memory key store.
package keychain

import "fmt"

// KeyType is the closed algorithm enumeration. There are exactly four
// variants; every PrivateKey, PublicKey, and Signature carries one.
type KeyType int

const (
	Secp256k1 KeyType = iota
	NistP256
	Ed25519
	BLS
)

func (t KeyType) String() string {
	switch t {
	case Secp256k1:
		return "Secp256k1"
	case NistP256:
		return "NistP256"
	case Ed25519:
		return "Ed25519"
	case BLS:
		return "BLS"
	default:
		return fmt.Sprintf("KeyType(%d)", int(t))
	}
}

// ParseKeyType is the inverse of String, used by the wire codec.
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "Secp256k1":
		return Secp256k1, nil
	case "NistP256":
		return NistP256, nil
	case "Ed25519":
		return Ed25519, nil
	case "BLS":
		return BLS, nil
	default:
		return 0, fmt.Errorf("keychain: unknown key type %q", s)
	}
}

// PrivateKey is the closed sum type over the four algorithms' private key
// material. Per spec.md §9's redesign note, the keychain stores this value
// directly rather than a boxed interface; Sign and PublicKeyOf dispatch
// with an exhaustive switch on Type.
//
// Exactly one of the per-algorithm fields is populated, selected by Type.
// Zeroed on Scrub so secret bytes do not linger in freed memory.
type PrivateKey struct {
	Type KeyType

	// ECDSA holds the raw scalar for Secp256k1 and NistP256.
	ECDSA []byte
	// Ed25519Seed holds the 32-byte seed for Ed25519.
	Ed25519Seed []byte
	// BLSScalar holds the raw 32-byte scalar for BLS.
	BLSScalar []byte
}

// Scrub overwrites the key's secret bytes before it is released, per
// spec.md §3's destruction invariant.
func (k *PrivateKey) Scrub() {
	zero(k.ECDSA)
	zero(k.Ed25519Seed)
	zero(k.BLSScalar)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// PublicKey mirrors PrivateKey's algorithm variants.
type PublicKey struct {
	Type KeyType
	// Bytes holds the algorithm's canonical serialization: SEC1 compressed
	// (33 bytes) for the two ECDSA curves, the standard 32-byte encoding
	// for Ed25519, 48-byte G1 compressed for BLS.
	Bytes []byte
}

// Signature mirrors PrivateKey's algorithm variants.
type Signature struct {
	Type KeyType
	// Bytes holds the algorithm's canonical wire form: fixed-size r‖s
	// big-endian for the two ECDSA curves, the standard 64-byte encoding
	// for Ed25519, 96-byte G2 compressed for BLS (see SPEC_FULL.md §4.4
	// for why this is 96 bytes and not the 48 spec.md's table states).
	Bytes []byte
}

// Signer describes a keypair exposing its public key and a signing method.
// No type in this package implements it: the keychain dispatches through
// the package-level PublicKeyOf and Sign functions.
type Signer interface {
	PublicKeyOf() PublicKey
	Sign(msg []byte) (Signature, error)
}
