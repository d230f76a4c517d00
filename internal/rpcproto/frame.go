// Package rpcproto implements the length-prefixed CBOR wire protocol:
// framing (this file), the tagged-sum Request/Response vocabulary
// (protocol.go), and the error kinds (errors.go).
package rpcproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCleanClose is returned by ReadFrame when the connection was closed
// exactly at a frame boundary (the 4-byte length read hit EOF with zero
// bytes consumed) — a clean close per spec.md §4.7, not an error to log.
var ErrCleanClose = errors.New("rpcproto: clean close at frame boundary")

// MaxFrameLen bounds a single frame's payload size, guarding against a
// malicious or corrupt length prefix driving an unbounded allocation.
const MaxFrameLen = 16 << 20 // 16 MiB

// ReadFrame reads one length-prefixed frame from r. EOF on the very first
// byte of the 4-byte length prefix is reported as ErrCleanClose; any other
// I/O error (including EOF mid-frame) is a hard transport error.
//
// There is no fixed-size read buffer here — resolving spec.md §9's open
// question about response buffer bounds for both directions of the
// protocol.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:1]); err != nil {
		if err == io.EOF {
			return nil, ErrCleanClose
		}
		return nil, fmt.Errorf("rpcproto: read frame length: %w", err)
	}
	if _, err := io.ReadFull(r, lenBuf[1:]); err != nil {
		return nil, fmt.Errorf("rpcproto: read frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("rpcproto: frame length %d exceeds maximum %d", n, MaxFrameLen)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("rpcproto: read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("rpcproto: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("rpcproto: write frame payload: %w", err)
	}
	return nil
}
