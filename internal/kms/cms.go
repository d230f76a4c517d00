package kms

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
)

// The following mirror RFC 5652 (CMS) just far enough to reach the single
// RecipientInfo's encrypted key: a KeyTransRecipientInfo whose
// KeyEncryptionAlgorithm is id-RSAES-OAEP. AWS KMS's CiphertextForRecipient
// is exactly this shape (one recipient, the ephemeral RSA public key
// attested in step 1 of spec.md §4.6).
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type keyTransRecipientInfo struct {
	Version                int
	RecipientIdentifier    asn1.RawValue
	KeyEncryptionAlgorithm algorithmIdentifier
	EncryptedKey           []byte
}

type encryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm algorithmIdentifier
	EncryptedContent           []byte `asn1:"optional,tag:0,implicit"`
}

type envelopedData struct {
	Version              int
	RecipientInfos       []keyTransRecipientInfo `asn1:"set"`
	EncryptedContentInfo encryptedContentInfo
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// unwrapEnvelopedData parses a CMS EnvelopedData structure (BER/DER) and
// RSA-OAEP/SHA-256-unwraps its single recipient's encrypted key with priv,
// implementing spec.md §4.6 steps 4-5.
func unwrapEnvelopedData(der []byte, priv *rsa.PrivateKey) ([]byte, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, fmt.Errorf("kms: parse CMS ContentInfo: %w", err)
	}

	var ed envelopedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &ed); err != nil {
		return nil, fmt.Errorf("kms: parse CMS EnvelopedData: %w", err)
	}
	if len(ed.RecipientInfos) == 0 {
		return nil, fmt.Errorf("kms: CMS EnvelopedData has no recipients")
	}

	// Exactly one recipient is expected (the attested ephemeral RSA
	// public key); take the first regardless of its RecipientIdentifier
	// encoding, since we hold only one candidate private key.
	encryptedKey := ed.RecipientInfos[0].EncryptedKey

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("kms: RSA-OAEP unwrap: %w", err)
	}
	return plaintext, nil
}
