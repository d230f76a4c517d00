package keychain

import (
	"fmt"
	"sync"
)

// RandBytes is satisfied by secmodule.RandomBytes bound to a gateway; kept
// as a function value here so this package never imports secmodule and
// stays testable with any byte source.
type RandBytes func(n int) ([]byte, error)

// Generate creates a fresh private key of the given type, drawing entropy
// through rb. This is the only place keygen touches the gateway CSPRNG,
// per spec.md §4.4's "Keygen inputs."
func Generate(t KeyType, rb RandBytes) (*PrivateKey, error) {
	switch t {
	case Secp256k1:
		return generateSecp256k1(rb)
	case NistP256:
		return generateNistP256(rb)
	case Ed25519:
		return generateEd25519(rb)
	case BLS:
		return generateBLS(rb)
	default:
		return nil, fmt.Errorf("keychain: unknown key type %v", t)
	}
}

// PublicKeyOf derives the public key for a private key, dispatching on its
// Type. A pure function of priv, per spec.md §8's "deterministic public
// keys" invariant.
func PublicKeyOf(priv *PrivateKey) (PublicKey, error) {
	switch priv.Type {
	case Secp256k1:
		return secp256k1PublicKey(priv)
	case NistP256:
		return nistP256PublicKey(priv)
	case Ed25519:
		return ed25519PublicKey(priv)
	case BLS:
		return blsPublicKey(priv)
	default:
		return PublicKey{}, fmt.Errorf("keychain: unknown key type %v", priv.Type)
	}
}

// Sign signs msg with priv, dispatching on its Type per the table in
// spec.md §4.4.
func Sign(priv *PrivateKey, msg []byte) (Signature, error) {
	switch priv.Type {
	case Secp256k1:
		return secp256k1Sign(priv, msg)
	case NistP256:
		return nistP256Sign(priv, msg)
	case Ed25519:
		return ed25519Sign(priv, msg)
	case BLS:
		return blsSign(priv, msg)
	default:
		return Signature{}, fmt.Errorf("keychain: unknown key type %v", priv.Type)
	}
}

// ErrInvalidHandle is returned when a handle does not name an imported key.
var ErrInvalidHandle = fmt.Errorf("keychain: invalid handle")

// Keychain is a per-connection, dense-handle store of plaintext private
// keys. Handles are 0-based, assigned in import order, and never reissued.
// It does not own ciphertext — only the plaintext key material, which
// exists for the lifetime of the owning connection.
type Keychain struct {
	mu   sync.Mutex
	keys []*PrivateKey
}

// New returns an empty keychain.
func New() *Keychain {
	return &Keychain{}
}

// Import appends priv and returns its newly assigned handle.
func (k *Keychain) Import(priv *PrivateKey) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, priv)
	return len(k.keys) - 1
}

// Get returns the private key for handle, or ErrInvalidHandle.
func (k *Keychain) Get(handle int) (*PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if handle < 0 || handle >= len(k.keys) {
		return nil, ErrInvalidHandle
	}
	return k.keys[handle], nil
}

// Sign signs msg with the key named by handle.
func (k *Keychain) Sign(handle int, msg []byte) (Signature, error) {
	priv, err := k.Get(handle)
	if err != nil {
		return Signature{}, err
	}
	return Sign(priv, msg)
}

// PublicKey returns the public key for handle.
func (k *Keychain) PublicKey(handle int) (PublicKey, error) {
	priv, err := k.Get(handle)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyOf(priv)
}

// Scrub zeroes every stored private key's secret bytes, called when the
// owning connection closes.
func (k *Keychain) Scrub() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, pk := range k.keys {
		pk.Scrub()
	}
}

// Len reports how many keys have been imported, used by tests asserting
// handle monotonicity.
func (k *Keychain) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}
