package rpcproto

import "fmt"

// Kind enumerates the error kinds carried in a Response's Err arm, per
// spec.md §7.
type Kind string

const (
	KindUninitialized      Kind = "Uninitialized"
	KindAlreadyInitialized Kind = "AlreadyInitialized"
	KindInvalidHandle      Kind = "InvalidHandle"
	KindDeserialize        Kind = "Deserialize"
	KindSigner             Kind = "Signer"
	KindEncryption         Kind = "Encryption"
	KindSerialize          Kind = "Serialize"
)

// Error is the error type every dispatch-layer failure is reported as.
// All of these round-trip to the client with the connection kept open
// (spec.md §7's propagation policy); only transport errors close it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// NewError builds an Error with a human-readable message and no cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that reports err's message and unwraps to it.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }
