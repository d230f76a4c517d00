// Package encryption defines the wrap/unwrap contract every private key
// crosses before leaving the enclave. Per spec.md §9's "sync vs
// cooperative duplication" note, there is a single Backend interface using
// context.Context for cancellation, not a blocking/cooperative pair: Go's
// net.Conn and KMS SDK calls are already cooperative through the runtime
// netpoller, so one contract covers both the fast in-memory path used by
// tests and the network-bound KMS path.
package encryption

import "context"

// Backend is constructed once per connection from client-supplied,
// backend-specific credentials (an opaque CBOR value only the concrete
// backend interprets).
type Backend interface {
	// Encrypt wraps plaintext, returning backend-specific ciphertext.
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	// Decrypt unwraps ciphertext produced by Encrypt.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Factory constructs a Backend from opaque, backend-specific credentials
// supplied in the Initialize request (spec.md §4.7).
type Factory interface {
	New(ctx context.Context, credentials []byte) (Backend, error)
}
