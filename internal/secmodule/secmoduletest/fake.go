// Package secmoduletest provides an in-memory secmodule.Gateway for tests
// across the module, standing in for a real /dev/nsm device.
package secmoduletest

import (
	"crypto/rand"

	"github.com/ecadlabs/enclave-signer/internal/secmodule"
)

// Fake is a deterministic-enough, crypto/rand-backed Gateway.
type Fake struct {
	chunks [][]byte
	next   int
}

var _ secmodule.Gateway = (*Fake)(nil)

// New returns a Gateway whose Random() calls draw real crypto/rand bytes
// in chunkSize pieces, matching "driver-chosen length" from spec.md §4.1.
func New(chunkSize int) *Fake {
	return &Fake{chunks: nil, next: chunkSize}
}

// NewFixed returns a Gateway that serves exactly the given chunks, in
// order, looping once exhausted — useful for deterministic keygen tests.
func NewFixed(chunks ...[]byte) *Fake {
	return &Fake{chunks: chunks}
}

func (f *Fake) Random() ([]byte, error) {
	if f.chunks != nil {
		c := f.chunks[f.next%len(f.chunks)]
		f.next++
		out := make([]byte, len(c))
		copy(out, c)
		return out, nil
	}
	buf := make([]byte, f.next)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *Fake) Attest(userData, nonce []byte, pub *secmodule.PublicKeyDER) ([]byte, error) {
	doc := append([]byte("fake-attestation-document:"), userData...)
	doc = append(doc, nonce...)
	if pub != nil {
		doc = append(doc, pub.DER...)
	}
	return doc, nil
}
