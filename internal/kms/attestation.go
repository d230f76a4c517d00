package kms

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/ecadlabs/enclave-signer/internal/secmodule"
)

// rsaBits is the ephemeral key size spec.md §3/§4.6 fixes for the
// per-connection attestation keypair.
const rsaBits = 2048

// ephemeralKey is the fresh RSA-2048 keypair a Backend holds for the
// lifetime of its connection. Per SPEC_FULL.md §4.6, a new one is
// generated every time NewBackend is called (once per connection), not
// shared process-wide as the original Rust app.rs does — spec.md's
// explicit per-connection wording governs here.
type ephemeralKey struct {
	priv *rsa.PrivateKey
}

func newEphemeralKey() (*ephemeralKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("kms: generate ephemeral RSA keypair: %w", err)
	}
	return &ephemeralKey{priv: priv}, nil
}

// attest asks gw for an attestation document binding this key's public
// half, DER-encoded as SubjectPublicKeyInfo. The document's user data and
// nonce fields are unused, per spec.md §4.6 step 1.
func (k *ephemeralKey) attest(gw secmodule.Gateway) ([]byte, error) {
	pubDER, err := secmodule.MarshalPublicKeyDER(&k.priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("kms: encode ephemeral public key: %w", err)
	}
	doc, err := gw.Attest(nil, nil, pubDER)
	if err != nil {
		return nil, fmt.Errorf("kms: attestation request: %w", err)
	}
	return doc, nil
}
