// Package vsockio wraps the host/enclave virtual-socket transport behind
// the standard net.Listener/net.Conn interfaces. mdlayher/vsock already
// integrates with Go's runtime netpoller, so every connection it returns
// is cooperative by construction — there is no separate blocking and
// cooperative code path to maintain (spec.md §9's "sync vs cooperative
// duplication" note collapses to this single transport).
package vsockio

import (
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// CIDAny is VMADDR_CID_ANY: bind a listener to accept connections
// addressed to any context id.
const CIDAny uint32 = 0xFFFFFFFF

// Listen binds a vsock listener on (CIDAny, port), the enclave's
// well-known accept address.
func Listen(port uint32) (net.Listener, error) {
	l, err := vsock.ListenContextID(CIDAny, port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsockio: listen on port %d: %w", port, err)
	}
	return l, nil
}

// Dial connects to (cid, port), used by the KMS backend's HTTP proxy
// transport when the enclave has no direct network access.
func Dial(cid, port uint32) (net.Conn, error) {
	c, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsockio: dial cid=%d port=%d: %w", cid, port, err)
	}
	return c, nil
}
