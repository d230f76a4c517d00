package keychain

import (
	"crypto/ed25519"
	"fmt"
)

func generateEd25519(randBytes func(n int) ([]byte, error)) (*PrivateKey, error) {
	seed, err := randBytes(ed25519.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("keychain: Ed25519 keygen: %w", err)
	}
	return &PrivateKey{Type: Ed25519, Ed25519Seed: seed}, nil
}

func ed25519PublicKey(priv *PrivateKey) (PublicKey, error) {
	if len(priv.Ed25519Seed) != ed25519.SeedSize {
		return PublicKey{}, fmt.Errorf("keychain: Ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(priv.Ed25519Seed)
	pub := key.Public().(ed25519.PublicKey)
	return PublicKey{Type: Ed25519, Bytes: []byte(pub)}, nil
}

func ed25519Sign(priv *PrivateKey, msg []byte) (Signature, error) {
	if len(priv.Ed25519Seed) != ed25519.SeedSize {
		return Signature{}, fmt.Errorf("keychain: Ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(priv.Ed25519Seed)
	sig := ed25519.Sign(key, msg)
	return Signature{Type: Ed25519, Bytes: sig}, nil
}
