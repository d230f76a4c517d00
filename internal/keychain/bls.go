package keychain

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"golang.org/x/crypto/hkdf"
)

// blsDST is the domain-separation tag for BLS min-pk augmented signing,
// per spec.md §4.4.
const blsDST = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_AUG_"

// blsOrder is the BLS12-381 scalar field order r, per EIP-2333.
var blsOrder, _ = new(big.Int).SetString(
	"52435875175126190479447740508185965837690552500527637822603658699938581184513", 10)

// hkdfModR implements EIP-2333's HKDF_mod_r, grounded on the protolambda
// ERC-2333 reference: fixed salt re-hashed with SHA-256 on each retry,
// HKDF-Extract/Expand with SHA-256 producing a 48-byte OKM reduced mod r.
func hkdfModR(ikm []byte, keyInfo string) (*big.Int, error) {
	salt := []byte("BLS-SIG-KEYGEN-SALT-")
	sk := big.NewInt(0)
	for sk.Sign() == 0 {
		h := sha256.Sum256(salt)
		salt = h[:]

		secret := append(append([]byte{}, ikm...), 0)
		prk := hkdf.Extract(sha256.New, secret, salt)

		info := append(append([]byte{}, keyInfo...), 0, 48)
		okmReader := hkdf.Expand(sha256.New, prk, info)
		var okm [48]byte
		if _, err := io.ReadFull(okmReader, okm[:]); err != nil {
			return nil, fmt.Errorf("keychain: BLS HKDF_mod_r: %w", err)
		}
		sk = new(big.Int).Mod(new(big.Int).SetBytes(okm[:]), blsOrder)
	}
	return sk, nil
}

func generateBLS(randBytes func(n int) ([]byte, error)) (*PrivateKey, error) {
	ikm, err := randBytes(32)
	if err != nil {
		return nil, fmt.Errorf("keychain: BLS keygen: %w", err)
	}
	sk, err := hkdfModR(ikm, "")
	if err != nil {
		return nil, err
	}
	fixed := make([]byte, 32)
	sk.FillBytes(fixed)
	return &PrivateKey{Type: BLS, BLSScalar: fixed}, nil
}

func blsPublicKey(priv *PrivateKey) (PublicKey, error) {
	scalar := new(big.Int).SetBytes(priv.BLSScalar)
	_, _, g1Gen, _ := bls12381.Generators()

	var pub bls12381.G1Affine
	pub.ScalarMultiplication(&g1Gen, scalar)

	b := pub.Bytes()
	return PublicKey{Type: BLS, Bytes: b[:]}, nil
}

func blsSign(priv *PrivateKey, msg []byte) (Signature, error) {
	scalar := new(big.Int).SetBytes(priv.BLSScalar)
	_, _, g1Gen, _ := bls12381.Generators()

	var pub bls12381.G1Affine
	pub.ScalarMultiplication(&g1Gen, scalar)
	pubBytes := pub.Bytes()

	// Augmentation: compressed public key prepended to the message, per
	// spec.md §4.4.
	augmented := make([]byte, 0, len(pubBytes)+len(msg))
	augmented = append(augmented, pubBytes[:]...)
	augmented = append(augmented, msg...)

	point, err := bls12381.HashToG2(augmented, []byte(blsDST))
	if err != nil {
		return Signature{}, fmt.Errorf("keychain: BLS hash-to-curve: %w", err)
	}

	var sig bls12381.G2Affine
	sig.ScalarMultiplication(&point, scalar)

	b := sig.Bytes()
	return Signature{Type: BLS, Bytes: b[:]}, nil
}
