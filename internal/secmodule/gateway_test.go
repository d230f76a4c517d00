package secmodule_test

import (
	"testing"

	"github.com/ecadlabs/enclave-signer/internal/secmodule"
	"github.com/ecadlabs/enclave-signer/internal/secmodule/secmoduletest"
	"github.com/stretchr/testify/require"
)

func TestRandomBytesConcatenatesChunks(t *testing.T) {
	gw := secmoduletest.NewFixed([]byte{1, 2, 3}, []byte{4, 5})
	out, err := secmodule.RandomBytes(gw, 7)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 1, 2}, out)
}

func TestRandomBytesExact(t *testing.T) {
	gw := secmoduletest.NewFixed([]byte{9, 9, 9, 9})
	out, err := secmodule.RandomBytes(gw, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9, 9, 9}, out)
}

func TestAttestBindsPublicKey(t *testing.T) {
	gw := secmoduletest.NewFixed([]byte{0})
	doc, err := gw.Attest(nil, nil, &secmodule.PublicKeyDER{DER: []byte{0xAA, 0xBB}})
	require.NoError(t, err)
	require.Contains(t, string(doc), "fake-attestation-document")
	require.Contains(t, string(doc), "\xAA\xBB")
}
