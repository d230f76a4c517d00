// Package secmodule talks to the enclave's security module: a single
// character device that hands out entropy and signs attestation documents.
package secmodule

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
)

// Gateway is the narrow interface the rest of the service depends on, so
// tests can substitute a fake device without opening /dev/nsm.
type Gateway interface {
	// Random returns a nonempty, driver-chosen-length byte string.
	Random() ([]byte, error)
	// Attest returns an opaque signed attestation document binding the
	// optional user data, nonce, and DER-encoded SubjectPublicKeyInfo.
	Attest(userData, nonce []byte, pub *PublicKeyDER) ([]byte, error)
}

// PublicKeyDER is a DER-encoded SubjectPublicKeyInfo (RFC 5280), the form
// the security module expects for the attested public key.
type PublicKeyDER struct {
	DER []byte
}

// MarshalPublicKeyDER DER-encodes a public key as a SubjectPublicKeyInfo.
func MarshalPublicKeyDER(pub crypto.PublicKey) (*PublicKeyDER, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("secmodule: marshal SubjectPublicKeyInfo: %w", err)
	}
	return &PublicKeyDER{DER: der}, nil
}

// NSMGateway is the real gateway, backed by an NSM device session. The
// device is a single file descriptor; the driver serializes concurrent
// requests, so one mutex here is enough to make this safe to share across
// every connection goroutine.
type NSMGateway struct {
	mu   sync.Mutex
	sess *nsm.Session
}

// Open opens the default NSM device session.
func Open() (*NSMGateway, error) {
	sess, err := nsm.OpenDefaultSession()
	if err != nil {
		return nil, fmt.Errorf("secmodule: open NSM session: %w", err)
	}
	return &NSMGateway{sess: sess}, nil
}

// Close releases the underlying device session.
func (g *NSMGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.Close()
}

// Random implements Gateway.
func (g *NSMGateway) Random() ([]byte, error) {
	g.mu.Lock()
	res, err := g.sess.Send(&request.GetRandom{})
	g.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("secmodule: GetRandom request: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("secmodule: NSM error: %s", res.Error)
	}
	if res.GetRandom == nil || len(res.GetRandom.Random) == 0 {
		return nil, fmt.Errorf("secmodule: driver returned empty random buffer")
	}
	return res.GetRandom.Random, nil
}

// Attest implements Gateway.
func (g *NSMGateway) Attest(userData, nonce []byte, pub *PublicKeyDER) ([]byte, error) {
	req := &request.Attestation{}
	if len(userData) > 0 {
		req.UserData = userData
	}
	if len(nonce) > 0 {
		req.Nonce = nonce
	}
	if pub != nil {
		req.PublicKey = pub.DER
	}

	g.mu.Lock()
	res, err := g.sess.Send(req)
	g.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("secmodule: Attestation request: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("secmodule: NSM error: %s", res.Error)
	}
	if res.Attestation == nil || len(res.Attestation.Document) == 0 {
		return nil, fmt.Errorf("secmodule: driver returned empty attestation document")
	}
	return res.Attestation.Document, nil
}

// RandomBytes concatenates Random() calls from g until n bytes are
// collected, the pattern every caller (entropy seeding, keygen) needs.
func RandomBytes(g Gateway, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := g.Random()
		if err != nil {
			return nil, err
		}
		need := n - len(out)
		if len(chunk) > need {
			chunk = chunk[:need]
		}
		out = append(out, chunk...)
	}
	return out, nil
}
