package rpcproto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ecadlabs/enclave-signer/internal/keychain"
)

// RequestOp names the nine request variants of spec.md §4.7's tagged sum.
type RequestOp string

const (
	OpInitialize         RequestOp = "Initialize"
	OpImport             RequestOp = "Import"
	OpImportUnencrypted  RequestOp = "ImportUnencrypted"
	OpGenerate           RequestOp = "Generate"
	OpGenerateAndImport  RequestOp = "GenerateAndImport"
	OpSign               RequestOp = "Sign"
	OpSignWith           RequestOp = "SignWith"
	OpPublicKey          RequestOp = "PublicKey"
	OpPublicKeyFrom      RequestOp = "PublicKeyFrom"
)

// Request is the closed sum over spec.md §4.7's request vocabulary. Only
// the fields relevant to Op are populated; see the table in spec.md §4.7.
type Request struct {
	Op RequestOp

	Credentials []byte         // Initialize
	KeyData     []byte         // Import, SignWith, PublicKeyFrom
	Key         *WirePrivate   // ImportUnencrypted
	KeyType     keychain.KeyType // Generate, GenerateAndImport
	Handle      int            // Sign, PublicKey
	Msg         []byte         // Sign, SignWith
}

// signRequest/signWithRequest mirror the original's struct-variant shape
// for Sign/SignWith, which carry two named fields rather than one.
type signRequest struct {
	Handle int    `cbor:"handle"`
	Msg    []byte `cbor:"msg"`
}

type signWithRequest struct {
	KeyData []byte `cbor:"key_data"`
	Msg     []byte `cbor:"msg"`
}

// MarshalCBOR encodes Request as a one-entry CBOR map keyed by its
// operation name, matching the externally-tagged representation the
// original Rust enum serializes to (serde's default for data-carrying
// enum variants).
func (r *Request) MarshalCBOR() ([]byte, error) {
	var payload interface{}
	switch r.Op {
	case OpInitialize:
		payload = r.Credentials
	case OpImport:
		payload = r.KeyData
	case OpImportUnencrypted:
		payload = r.Key
	case OpGenerate, OpGenerateAndImport:
		payload = r.KeyType.String()
	case OpSign:
		payload = signRequest{Handle: r.Handle, Msg: r.Msg}
	case OpSignWith:
		payload = signWithRequest{KeyData: r.KeyData, Msg: r.Msg}
	case OpPublicKey:
		payload = r.Handle
	case OpPublicKeyFrom:
		payload = r.KeyData
	default:
		return nil, fmt.Errorf("rpcproto: unknown request op %q", r.Op)
	}
	return cbor.Marshal(map[string]interface{}{string(r.Op): payload})
}

// UnmarshalCBOR decodes a one-entry CBOR map keyed by operation name.
func (r *Request) UnmarshalCBOR(data []byte) error {
	var raw map[RequestOp]cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rpcproto: decode request envelope: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("rpcproto: request envelope must have exactly one key, got %d", len(raw))
	}
	for op, body := range raw {
		r.Op = op
		switch op {
		case OpInitialize:
			return cbor.Unmarshal(body, &r.Credentials)
		case OpImport:
			return cbor.Unmarshal(body, &r.KeyData)
		case OpImportUnencrypted:
			var key WirePrivate
			if err := cbor.Unmarshal(body, &key); err != nil {
				return err
			}
			r.Key = &key
			return nil
		case OpGenerate, OpGenerateAndImport:
			var s string
			if err := cbor.Unmarshal(body, &s); err != nil {
				return err
			}
			kt, err := keychain.ParseKeyType(s)
			if err != nil {
				return err
			}
			r.KeyType = kt
			return nil
		case OpSign:
			var s signRequest
			if err := cbor.Unmarshal(body, &s); err != nil {
				return err
			}
			r.Handle, r.Msg = s.Handle, s.Msg
			return nil
		case OpSignWith:
			var s signWithRequest
			if err := cbor.Unmarshal(body, &s); err != nil {
				return err
			}
			r.KeyData, r.Msg = s.KeyData, s.Msg
			return nil
		case OpPublicKey:
			return cbor.Unmarshal(body, &r.Handle)
		case OpPublicKeyFrom:
			return cbor.Unmarshal(body, &r.KeyData)
		default:
			return fmt.Errorf("rpcproto: unknown request op %q", op)
		}
	}
	return nil
}

// --- wire forms of keychain sum types ---

// WireKeyType is KeyType's externally-tagged wire form: a bare CBOR text
// string, since it is a unit variant.
type WireKeyType = keychain.KeyType

// WirePrivate, WirePublic, and WireSignature are one-entry-map wire forms
// of keychain.PrivateKey/PublicKey/Signature, keyed by algorithm name.

type WirePrivate struct {
	Type  keychain.KeyType
	Bytes []byte
}

func (k *WirePrivate) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string][]byte{k.Type.String(): k.Bytes})
}

func (k *WirePrivate) UnmarshalCBOR(data []byte) error {
	var raw map[string][]byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	return decodeOneOf(raw, &k.Type, &k.Bytes)
}

// ToKeychain converts the wire form into the internal sum type, placing
// the raw bytes in the field Type selects.
func (k *WirePrivate) ToKeychain() *keychain.PrivateKey {
	priv := &keychain.PrivateKey{Type: k.Type}
	switch k.Type {
	case keychain.Secp256k1, keychain.NistP256:
		priv.ECDSA = k.Bytes
	case keychain.Ed25519:
		priv.Ed25519Seed = k.Bytes
	case keychain.BLS:
		priv.BLSScalar = k.Bytes
	}
	return priv
}

// WirePrivateFromKeychain converts an internal PrivateKey into its wire
// form.
func WirePrivateFromKeychain(priv *keychain.PrivateKey) *WirePrivate {
	var b []byte
	switch priv.Type {
	case keychain.Secp256k1, keychain.NistP256:
		b = priv.ECDSA
	case keychain.Ed25519:
		b = priv.Ed25519Seed
	case keychain.BLS:
		b = priv.BLSScalar
	}
	return &WirePrivate{Type: priv.Type, Bytes: b}
}

type WirePublic keychain.PublicKey

func (k WirePublic) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string][]byte{k.Type.String(): k.Bytes})
}

func (k *WirePublic) UnmarshalCBOR(data []byte) error {
	var raw map[string][]byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	return decodeOneOf(raw, &k.Type, &k.Bytes)
}

type WireSignature keychain.Signature

func (s WireSignature) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string][]byte{s.Type.String(): s.Bytes})
}

func (s *WireSignature) UnmarshalCBOR(data []byte) error {
	var raw map[string][]byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	return decodeOneOf(raw, &s.Type, &s.Bytes)
}

func decodeOneOf(raw map[string][]byte, t *keychain.KeyType, b *[]byte) error {
	if len(raw) != 1 {
		return fmt.Errorf("rpcproto: variant map must have exactly one key, got %d", len(raw))
	}
	for name, bytes := range raw {
		kt, err := keychain.ParseKeyType(name)
		if err != nil {
			return err
		}
		*t = kt
		*b = bytes
	}
	return nil
}
