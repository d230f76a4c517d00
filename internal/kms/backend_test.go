package kms

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ecadlabs/enclave-signer/internal/secmodule/secmoduletest"
	"github.com/stretchr/testify/require"
)

// fakeKMS implements just enough of kmsiface.KMSAPI to exercise Backend.
// Embedding the interface satisfies every method not overridden below,
// which would otherwise panic if called.
type fakeKMS struct {
	kmsiface.KMSAPI
}

func (f *fakeKMS) EncryptWithContext(ctx aws.Context, in *kms.EncryptInput, opts ...request.Option) (*kms.EncryptOutput, error) {
	return &kms.EncryptOutput{CiphertextBlob: in.Plaintext, KeyId: in.KeyId}, nil
}

func (f *fakeKMS) DecryptWithContext(ctx aws.Context, in *kms.DecryptInput, opts ...request.Option) (*kms.DecryptOutput, error) {
	// The attestation document produced by secmoduletest.Fake is
	// "fake-attestation-document:" || userData || nonce || pubDER; the
	// ephemeral public key is everything after that fixed prefix.
	const prefix = "fake-attestation-document:"
	doc := in.Recipient.AttestationDocument
	pubDER := doc[len(prefix):]

	pubAny, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return nil, err
	}
	rsaPub := pubAny.(*rsa.PublicKey)

	dataKey := in.CiphertextBlob // treat the blob itself as the wrapped data key's plaintext
	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, dataKey, nil)
	if err != nil {
		return nil, err
	}

	der, err := marshalEnvelopedDataForTest(encryptedKey)
	if err != nil {
		return nil, err
	}
	return &kms.DecryptOutput{CiphertextForRecipient: der}, nil
}

func marshalEnvelopedDataForTest(encryptedKey []byte) ([]byte, error) {
	ed := envelopedData{
		Version: 0,
		RecipientInfos: []keyTransRecipientInfo{
			{
				Version:                0,
				RecipientIdentifier:    asn1.RawValue{Tag: asn1.TagOctetString, Class: asn1.ClassContextSpecific, Bytes: []byte{0x01}},
				KeyEncryptionAlgorithm: algorithmIdentifier{Algorithm: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 7}},
				EncryptedKey:           encryptedKey,
			},
		},
		EncryptedContentInfo: encryptedContentInfo{
			ContentType:                asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1},
			ContentEncryptionAlgorithm: algorithmIdentifier{Algorithm: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}},
		},
	}
	edBytes, err := asn1.Marshal(ed)
	if err != nil {
		return nil, err
	}
	ci := contentInfo{
		ContentType: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3},
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: edBytes},
	}
	return asn1.Marshal(ci)
}

func TestBackendEncryptDecryptRoundtrip(t *testing.T) {
	gw := secmoduletest.New(64)
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	backend := NewForTest(gw, &fakeKMS{}, "test-key", priv)

	plaintext := []byte("super secret private key bytes")
	ct, err := backend.Encrypt(context.Background(), plaintext)
	require.NoError(t, err)

	pt, err := backend.Decrypt(context.Background(), ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}
