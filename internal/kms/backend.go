// Package kms implements the concrete encryption.Backend that performs
// attested decryption against AWS KMS, per spec.md §4.6: an ephemeral
// RSA-2048 keypair, a signed attestation document binding its public half,
// and a KMS Decrypt call whose CiphertextForRecipient is a CMS
// EnvelopedData the backend unwraps locally.
package kms

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/fxamacker/cbor/v2"

	"github.com/ecadlabs/enclave-signer/internal/encryption"
	"github.com/ecadlabs/enclave-signer/internal/secmodule"
	"github.com/ecadlabs/enclave-signer/internal/vsockio"
)

// keyEncryptionAlgorithm is the Recipient.KeyEncryptionAlgorithm spec.md
// §4.6 step 2 fixes.
const keyEncryptionAlgorithm = "RSAES_OAEP_SHA_256"

// Credentials is the opaque, backend-specific payload carried by the
// client's Initialize request (spec.md §4.5/§4.7).
type Credentials struct {
	KeyID    string `cbor:"key_id"`
	Endpoint string `cbor:"endpoint,omitempty"`
}

// ProxyConfig describes an optional vsock-hosted HTTP proxy the KMS client
// dials through, for enclaves without direct network access (spec.md §6).
type ProxyConfig struct {
	CID  uint32
	Port uint32
}

// Factory builds a Backend per connection, sharing the secure-module
// gateway and the acceptor's proxy/endpoint configuration.
type Factory struct {
	Gateway  secmodule.Gateway
	Proxy    *ProxyConfig
	Endpoint string
}

var _ encryption.Factory = (*Factory)(nil)

// New constructs a fresh per-connection Backend: a new ephemeral RSA-2048
// keypair (SPEC_FULL.md §4.6) and a KMS client configured per f and the
// client-supplied credentials.
func (f *Factory) New(ctx context.Context, credentials []byte) (encryption.Backend, error) {
	var creds Credentials
	if err := cbor.Unmarshal(credentials, &creds); err != nil {
		return nil, fmt.Errorf("kms: decode credentials: %w", err)
	}
	if creds.KeyID == "" {
		return nil, fmt.Errorf("kms: credentials missing key_id")
	}

	endpoint := f.Endpoint
	if creds.Endpoint != "" {
		endpoint = creds.Endpoint
	}

	cfg := aws.NewConfig()
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	if f.Proxy != nil {
		proxy := *f.Proxy
		cfg = cfg.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return vsockio.Dial(proxy.CID, proxy.Port)
				},
			},
		})
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("kms: build AWS session: %w", err)
	}

	key, err := newEphemeralKey()
	if err != nil {
		return nil, err
	}

	return &Backend{
		gateway: f.Gateway,
		client:  kms.New(sess),
		keyID:   creds.KeyID,
		ephKey:  key,
	}, nil
}

var _ encryption.Backend = (*Backend)(nil)

// Backend implements encryption.Backend against AWS KMS.
type Backend struct {
	gateway secmodule.Gateway
	client  kmsiface.KMSAPI
	keyID   string
	ephKey  *ephemeralKey
}

// NewForTest constructs a Backend around an arbitrary kmsiface.KMSAPI
// implementation, letting tests substitute a fake KMS without a network.
func NewForTest(gw secmodule.Gateway, client kmsiface.KMSAPI, keyID string, key *rsa.PrivateKey) *Backend {
	return &Backend{gateway: gw, client: client, keyID: keyID, ephKey: &ephemeralKey{priv: key}}
}

// Encrypt implements encryption.Backend: a plain KMS.Encrypt call
// (spec.md §4.6).
func (b *Backend) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := b.client.EncryptWithContext(ctx, &kms.EncryptInput{
		KeyId:     aws.String(b.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Decrypt implements the attested-decryption protocol of spec.md §4.6.
func (b *Backend) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	doc, err := b.ephKey.attest(b.gateway)
	if err != nil {
		return nil, fmt.Errorf("kms: attestation: %w", err)
	}

	out, err := b.client.DecryptWithContext(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
		Recipient: &kms.RecipientInfo{
			KeyEncryptionAlgorithm: aws.String(keyEncryptionAlgorithm),
			AttestationDocument:    doc,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Decrypt: %w", err)
	}

	plaintext, err := unwrapEnvelopedData(out.CiphertextForRecipient, b.ephKey.priv)
	if err != nil {
		return nil, fmt.Errorf("kms: unwrap CiphertextForRecipient: %w", err)
	}
	return plaintext, nil
}
