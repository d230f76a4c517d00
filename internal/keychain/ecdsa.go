package keychain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

// digest implements the "Blake2b-256 of the raw message" step shared by
// both ECDSA curves per spec.md §4.4's signing discipline table. This is a
// domain decision, not a cryptographic default: verifiers must apply the
// same digest spec.md §9 fixes here.
func digest(msg []byte) [32]byte {
	return blake2b.Sum256(msg)
}

// --- secp256k1 ---

func generateSecp256k1(randBytes func(n int) ([]byte, error)) (*PrivateKey, error) {
	seed, err := randBytes(32)
	if err != nil {
		return nil, fmt.Errorf("keychain: secp256k1 keygen: %w", err)
	}
	// Redraw until the seed is a valid nonzero scalar; vanishingly unlikely
	// to loop.
	for {
		scalar := new(secp256k1.ModNScalar)
		overflow := scalar.SetByteSlice(seed)
		if !overflow && !scalar.IsZero() {
			break
		}
		seed, err = randBytes(32)
		if err != nil {
			return nil, fmt.Errorf("keychain: secp256k1 keygen: %w", err)
		}
	}
	return &PrivateKey{Type: Secp256k1, ECDSA: seed}, nil
}

func secp256k1PublicKey(priv *PrivateKey) (PublicKey, error) {
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(priv.ECDSA); overflow {
		return PublicKey{}, fmt.Errorf("keychain: secp256k1 private key out of range")
	}
	privKey := secp256k1.NewPrivateKey(&scalar)
	pub := privKey.PubKey()
	return PublicKey{Type: Secp256k1, Bytes: pub.SerializeCompressed()}, nil
}

func secp256k1Sign(priv *PrivateKey, msg []byte) (Signature, error) {
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(priv.ECDSA); overflow {
		return Signature{}, fmt.Errorf("keychain: secp256k1 private key out of range")
	}
	privKey := secp256k1.NewPrivateKey(&scalar)
	d := digest(msg)
	sig := decredecdsa.Sign(privKey, d[:])

	r := sig.R()
	s := sig.S()
	out := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[32-len(rBytes):32], rBytes[:])
	copy(out[64-len(sBytes):64], sBytes[:])
	return Signature{Type: Secp256k1, Bytes: out}, nil
}

// --- NIST P-256 ---

func generateNistP256(randBytes func(n int) ([]byte, error)) (*PrivateKey, error) {
	order := elliptic.P256().Params().N
	// Redraw until the seed is a nonzero scalar below the group order.
	for {
		seed, err := randBytes(32)
		if err != nil {
			return nil, fmt.Errorf("keychain: P-256 keygen: %w", err)
		}
		d := new(big.Int).SetBytes(seed)
		if d.Sign() != 0 && d.Cmp(order) < 0 {
			return &PrivateKey{Type: NistP256, ECDSA: seed}, nil
		}
	}
}

func nistP256PublicKey(priv *PrivateKey) (PublicKey, error) {
	curve := elliptic.P256()
	x, y := curve.ScalarBaseMult(priv.ECDSA)
	return PublicKey{Type: NistP256, Bytes: elliptic.MarshalCompressed(curve, x, y)}, nil
}

func nistP256Sign(priv *PrivateKey, msg []byte) (Signature, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(priv.ECDSA)
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(priv.ECDSA)

	dg := digest(msg)
	r, s, err := ecdsa.Sign(rand.Reader, key, dg[:])
	if err != nil {
		return Signature{}, fmt.Errorf("keychain: P-256 sign: %w", err)
	}
	out := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	return Signature{Type: NistP256, Bytes: out}, nil
}
