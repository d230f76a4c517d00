package rpcproto_test

import (
	"bytes"
	"testing"

	"github.com/ecadlabs/enclave-signer/internal/keychain"
	"github.com/ecadlabs/enclave-signer/internal/rpcproto"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frame")
	require.NoError(t, rpcproto.WriteFrame(&buf, payload))

	got, err := rpcproto.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrameCleanClose(t *testing.T) {
	_, err := rpcproto.ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, rpcproto.ErrCleanClose)
}

func TestReadFrameTruncatedIsHardError(t *testing.T) {
	// Only 2 of the 4 length-prefix bytes present: truncated mid-frame,
	// must be a hard error, not ErrCleanClose.
	_, err := rpcproto.ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	require.Error(t, err)
	require.NotErrorIs(t, err, rpcproto.ErrCleanClose)
}

func TestRequestRoundtripAllOps(t *testing.T) {
	reqs := []*rpcproto.Request{
		{Op: rpcproto.OpInitialize, Credentials: []byte(`{"key_id":"x"}`)},
		{Op: rpcproto.OpImport, KeyData: []byte{1, 2, 3}},
		{Op: rpcproto.OpImportUnencrypted, Key: &rpcproto.WirePrivate{Type: keychain.Ed25519, Bytes: make([]byte, 32)}},
		{Op: rpcproto.OpGenerate, KeyType: keychain.Secp256k1},
		{Op: rpcproto.OpGenerateAndImport, KeyType: keychain.BLS},
		{Op: rpcproto.OpSign, Handle: 7, Msg: []byte("msg")},
		{Op: rpcproto.OpSignWith, KeyData: []byte{9, 9}, Msg: []byte("msg2")},
		{Op: rpcproto.OpPublicKey, Handle: 3},
		{Op: rpcproto.OpPublicKeyFrom, KeyData: []byte{4, 4}},
	}

	for _, req := range reqs {
		req := req
		t.Run(string(req.Op), func(t *testing.T) {
			enc, err := req.MarshalCBOR()
			require.NoError(t, err)

			var got rpcproto.Request
			require.NoError(t, got.UnmarshalCBOR(enc))
			require.Equal(t, req.Op, got.Op)
			require.Equal(t, req.Handle, got.Handle)
			require.Equal(t, req.Msg, got.Msg)
			require.Equal(t, req.KeyData, got.KeyData)
			require.Equal(t, req.KeyType, got.KeyType)
			if req.Key != nil {
				require.Equal(t, req.Key.Type, got.Key.Type)
				require.Equal(t, req.Key.Bytes, got.Key.Bytes)
			}
		})
	}
}

func TestGarbageFrameYieldsDeserializeError(t *testing.T) {
	var got rpcproto.Request
	err := got.UnmarshalCBOR([]byte{0xFF, 0xFF, 0xFF})
	require.Error(t, err)
}

func TestResponseOkErrRoundtrip(t *testing.T) {
	okEnc, err := rpcproto.EncodeOk(map[string]int{"handle": 1})
	require.NoError(t, err)
	payload, errResp, err := rpcproto.DecodeResponse(okEnc)
	require.NoError(t, err)
	require.Nil(t, errResp)
	require.NotEmpty(t, payload)

	errEnc, err := rpcproto.EncodeErr(rpcproto.NewError(rpcproto.KindInvalidHandle, "no such handle"))
	require.NoError(t, err)
	_, errResp2, err := rpcproto.DecodeResponse(errEnc)
	require.NoError(t, err)
	require.Equal(t, rpcproto.KindInvalidHandle, errResp2.Kind)
}
