package session_test

import (
	"context"
	"testing"

	"github.com/ecadlabs/enclave-signer/internal/encryption"
	"github.com/ecadlabs/enclave-signer/internal/keychain"
	"github.com/ecadlabs/enclave-signer/internal/rpcproto"
	"github.com/ecadlabs/enclave-signer/internal/secmodule/secmoduletest"
	"github.com/ecadlabs/enclave-signer/internal/session"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory encryption.Backend stand-in: Encrypt/Decrypt
// round-trip through a fixed XOR mask, enough to exercise Import/SignWith
// without touching KMS.
type memBackend struct{ mask byte }

func (b *memBackend) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, c := range plaintext {
		out[i] = c ^ b.mask
	}
	return out, nil
}

func (b *memBackend) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	return b.Encrypt(context.Background(), ciphertext)
}

type memFactory struct{ backend encryption.Backend }

func (f *memFactory) New(_ context.Context, _ []byte) (encryption.Backend, error) {
	return f.backend, nil
}

// randBytesFrom adapts a chunked Gateway.Random() into a RandBytes that
// returns exactly n bytes, assembling as many chunks as needed.
func randBytesFrom(gw *secmoduletest.Fake) keychain.RandBytes {
	return func(n int) ([]byte, error) {
		out := make([]byte, 0, n)
		for len(out) < n {
			chunk, err := gw.Random()
			if err != nil {
				return nil, err
			}
			if len(chunk) > n-len(out) {
				chunk = chunk[:n-len(out)]
			}
			out = append(out, chunk...)
		}
		return out, nil
	}
}

func newTestSession() *session.Session {
	gw := secmoduletest.New(32)
	factory := &memFactory{backend: &memBackend{mask: 0x5A}}
	return session.New(gw, factory, randBytesFrom(gw))
}

func TestUninitializedRejectsEverythingButInitialize(t *testing.T) {
	s := newTestSession()
	_, errResp := s.Dispatch(context.Background(), &rpcproto.Request{Op: rpcproto.OpGenerate, KeyType: keychain.Ed25519})
	require.NotNil(t, errResp)
	require.Equal(t, rpcproto.KindUninitialized, errResp.Kind)
}

func TestInitializeTwiceIsRejected(t *testing.T) {
	s := newTestSession()
	_, errResp := s.Dispatch(context.Background(), &rpcproto.Request{Op: rpcproto.OpInitialize, Credentials: []byte("creds")})
	require.Nil(t, errResp)

	_, errResp = s.Dispatch(context.Background(), &rpcproto.Request{Op: rpcproto.OpInitialize, Credentials: []byte("creds")})
	require.NotNil(t, errResp)
	require.Equal(t, rpcproto.KindAlreadyInitialized, errResp.Kind)
}

func TestGenerateAndImportThenSignAndPublicKey(t *testing.T) {
	s := newTestSession()
	ctx := context.Background()
	_, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpInitialize, Credentials: []byte("creds")})
	require.Nil(t, errResp)

	res, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpGenerateAndImport, KeyType: keychain.Ed25519})
	require.Nil(t, errResp)
	result, ok := res.(struct {
		Ciphertext []byte              `cbor:"ciphertext"`
		PublicKey  rpcproto.WirePublic `cbor:"public_key"`
		Handle     int                 `cbor:"handle"`
	})
	require.True(t, ok)
	require.NotEmpty(t, result.Ciphertext)
	handle := result.Handle

	sigRes, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpSign, Handle: handle, Msg: []byte("msg")})
	require.Nil(t, errResp)
	_, ok = sigRes.(rpcproto.WireSignature)
	require.True(t, ok)

	pubRes, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpPublicKey, Handle: handle})
	require.Nil(t, errResp)
	pub, ok := pubRes.(rpcproto.WirePublic)
	require.True(t, ok)
	require.Equal(t, result.PublicKey.Bytes, pub.Bytes)
}

func TestSignInvalidHandle(t *testing.T) {
	s := newTestSession()
	ctx := context.Background()
	_, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpInitialize, Credentials: []byte("creds")})
	require.Nil(t, errResp)

	_, errResp = s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpSign, Handle: 42, Msg: []byte("msg")})
	require.NotNil(t, errResp)
	require.Equal(t, rpcproto.KindInvalidHandle, errResp.Kind)
}

func TestImportRoundtripsThroughBackend(t *testing.T) {
	s := newTestSession()
	ctx := context.Background()
	_, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpInitialize, Credentials: []byte("creds")})
	require.Nil(t, errResp)

	priv, err := keychain.Generate(keychain.Secp256k1, randBytesFrom(secmoduletest.New(32)))
	require.NoError(t, err)

	wire := rpcproto.WirePrivateFromKeychain(priv)
	plain, err := wire.MarshalCBOR()
	require.NoError(t, err)

	backend := &memBackend{mask: 0x5A}
	ciphertext, err := backend.Encrypt(ctx, plain)
	require.NoError(t, err)

	res, errResp := s.Dispatch(ctx, &rpcproto.Request{Op: rpcproto.OpImport, KeyData: ciphertext})
	require.Nil(t, errResp)
	result, ok := res.(struct {
		PublicKey rpcproto.WirePublic `cbor:"public_key"`
		Handle    int                 `cbor:"handle"`
	})
	require.True(t, ok)
	require.Equal(t, 0, result.Handle)
	require.NotEmpty(t, result.PublicKey.Bytes)
}
