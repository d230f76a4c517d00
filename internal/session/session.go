// Package session implements the per-connection state machine described in
// spec.md §4.7: a connection starts Uninitialized, accepts exactly one
// Initialize call to bind an encryption.Backend, and thereafter dispatches
// key-management and signing operations against a keychain.Keychain.
//
// This mirrors original_source/signer_core/src/lib.rs's EncryptedSigner:
// the same eight operations, the same Uninitialized/AlreadyInitialized
// guard, the same "errors stay on the connection, only transport failures
// close it" policy.
package session

import (
	"context"
	"fmt"

	"github.com/ecadlabs/enclave-signer/internal/encryption"
	"github.com/ecadlabs/enclave-signer/internal/keychain"
	"github.com/ecadlabs/enclave-signer/internal/rpcproto"
	"github.com/ecadlabs/enclave-signer/internal/secmodule"
)

// RandBytes sources the randomness used for key generation.
type RandBytes = keychain.RandBytes

// Session holds one connection's mutable state: its keychain and,
// once Initialize succeeds, its encryption backend.
type Session struct {
	gateway secmodule.Gateway
	factory encryption.Factory
	rand    RandBytes

	chain   *keychain.Keychain
	backend encryption.Backend // nil until Initialize succeeds
}

// New returns a fresh, Uninitialized Session for one connection.
func New(gateway secmodule.Gateway, factory encryption.Factory, rand RandBytes) *Session {
	return &Session{
		gateway: gateway,
		factory: factory,
		rand:    rand,
		chain:   keychain.New(),
	}
}

// Scrub wipes all private key material held by the session. Called when
// the connection closes.
func (s *Session) Scrub() {
	s.chain.Scrub()
}

// Dispatch executes one request and returns the CBOR-encodable payload for
// a successful response, or an *rpcproto.Error for a well-formed failure.
// Both cases are "the connection stays open" outcomes; Dispatch has no
// return value that signals a condition fatal to the connection.
func (s *Session) Dispatch(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	if req.Op == rpcproto.OpInitialize {
		return s.initialize(ctx, req)
	}
	if s.backend == nil {
		return nil, rpcproto.NewError(rpcproto.KindUninitialized, "session is not initialized")
	}

	switch req.Op {
	case rpcproto.OpImport:
		return s.doImport(ctx, req)
	case rpcproto.OpImportUnencrypted:
		return s.doImportUnencrypted(ctx, req)
	case rpcproto.OpGenerate:
		return s.doGenerate(ctx, req, false)
	case rpcproto.OpGenerateAndImport:
		return s.doGenerate(ctx, req, true)
	case rpcproto.OpSign:
		return s.doSign(req)
	case rpcproto.OpSignWith:
		return s.doSignWith(ctx, req)
	case rpcproto.OpPublicKey:
		return s.doPublicKey(req)
	case rpcproto.OpPublicKeyFrom:
		return s.doPublicKeyFrom(ctx, req)
	default:
		return nil, rpcproto.NewError(rpcproto.KindDeserialize, fmt.Sprintf("unknown operation %q", req.Op))
	}
}

func (s *Session) initialize(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	if s.backend != nil {
		return nil, rpcproto.NewError(rpcproto.KindAlreadyInitialized, "session is already initialized")
	}
	backend, err := s.factory.New(ctx, req.Credentials)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindEncryption, err)
	}
	s.backend = backend
	return struct{}{}, nil
}

// encrypt wraps priv with the connection's backend, returning the
// ciphertext of its CBOR wire encoding — the only form a private key is
// ever allowed to leave the enclave in, per spec.md §1.
func (s *Session) encrypt(ctx context.Context, priv *keychain.PrivateKey) ([]byte, *rpcproto.Error) {
	plain, err := rpcproto.WirePrivateFromKeychain(priv).MarshalCBOR()
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindSerialize, err)
	}
	ct, err := s.backend.Encrypt(ctx, plain)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindEncryption, err)
	}
	return ct, nil
}

func (s *Session) doImport(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	priv, errResp := s.decryptWire(ctx, req.KeyData)
	if errResp != nil {
		return nil, errResp
	}
	pub, errResp := s.publicKeyOf(priv)
	if errResp != nil {
		return nil, errResp
	}
	handle := s.chain.Import(priv)
	return struct {
		PublicKey rpcproto.WirePublic `cbor:"public_key"`
		Handle    int                 `cbor:"handle"`
	}{PublicKey: rpcproto.WirePublic(pub), Handle: handle}, nil
}

func (s *Session) doImportUnencrypted(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	if req.Key == nil {
		return nil, rpcproto.NewError(rpcproto.KindDeserialize, "missing key")
	}
	priv := req.Key.ToKeychain()
	pub, errResp := s.publicKeyOf(priv)
	if errResp != nil {
		return nil, errResp
	}
	ct, errResp := s.encrypt(ctx, priv)
	if errResp != nil {
		return nil, errResp
	}
	handle := s.chain.Import(priv)
	return struct {
		Ciphertext []byte              `cbor:"ciphertext"`
		PublicKey  rpcproto.WirePublic `cbor:"public_key"`
		Handle     int                 `cbor:"handle"`
	}{Ciphertext: ct, PublicKey: rpcproto.WirePublic(pub), Handle: handle}, nil
}

func (s *Session) doGenerate(ctx context.Context, req *rpcproto.Request, andImport bool) (interface{}, *rpcproto.Error) {
	priv, err := keychain.Generate(req.KeyType, s.rand)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindSigner, err)
	}
	pub, errResp := s.publicKeyOf(priv)
	if errResp != nil {
		return nil, errResp
	}
	ct, errResp := s.encrypt(ctx, priv)
	if errResp != nil {
		return nil, errResp
	}
	if !andImport {
		return struct {
			Ciphertext []byte              `cbor:"ciphertext"`
			PublicKey  rpcproto.WirePublic `cbor:"public_key"`
		}{Ciphertext: ct, PublicKey: rpcproto.WirePublic(pub)}, nil
	}
	handle := s.chain.Import(priv)
	return struct {
		Ciphertext []byte              `cbor:"ciphertext"`
		PublicKey  rpcproto.WirePublic `cbor:"public_key"`
		Handle     int                 `cbor:"handle"`
	}{Ciphertext: ct, PublicKey: rpcproto.WirePublic(pub), Handle: handle}, nil
}

func (s *Session) publicKeyOf(priv *keychain.PrivateKey) (keychain.PublicKey, *rpcproto.Error) {
	pub, err := keychain.PublicKeyOf(priv)
	if err != nil {
		return keychain.PublicKey{}, rpcproto.Wrap(rpcproto.KindSigner, err)
	}
	return pub, nil
}

func (s *Session) doSign(req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	sig, err := s.chain.Sign(req.Handle, req.Msg)
	if err != nil {
		return nil, classifySignerErr(err)
	}
	return rpcproto.WireSignature(sig), nil
}

func (s *Session) doSignWith(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	priv, errResp := s.decryptWire(ctx, req.KeyData)
	if errResp != nil {
		return nil, errResp
	}
	sig, err := keychain.Sign(priv, req.Msg)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindSigner, err)
	}
	return rpcproto.WireSignature(sig), nil
}

// decryptWire unwraps ciphertext with the connection's backend and decodes
// the plaintext as a WirePrivate, discarding the plaintext bytes once
// converted into the keychain's in-memory form.
func (s *Session) decryptWire(ctx context.Context, ciphertext []byte) (*keychain.PrivateKey, *rpcproto.Error) {
	plain, err := s.backend.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindEncryption, err)
	}
	var wire rpcproto.WirePrivate
	if err := wire.UnmarshalCBOR(plain); err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindDeserialize, err)
	}
	return wire.ToKeychain(), nil
}

func (s *Session) doPublicKey(req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	pub, err := s.chain.PublicKey(req.Handle)
	if err != nil {
		return nil, classifySignerErr(err)
	}
	return rpcproto.WirePublic(pub), nil
}

func (s *Session) doPublicKeyFrom(ctx context.Context, req *rpcproto.Request) (interface{}, *rpcproto.Error) {
	priv, errResp := s.decryptWire(ctx, req.KeyData)
	if errResp != nil {
		return nil, errResp
	}
	pub, err := keychain.PublicKeyOf(priv)
	if err != nil {
		return nil, rpcproto.Wrap(rpcproto.KindSigner, err)
	}
	return rpcproto.WirePublic(pub), nil
}

func classifySignerErr(err error) *rpcproto.Error {
	if err == keychain.ErrInvalidHandle {
		return rpcproto.NewError(rpcproto.KindInvalidHandle, err.Error())
	}
	return rpcproto.Wrap(rpcproto.KindSigner, err)
}
