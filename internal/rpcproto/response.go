package rpcproto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// errBody is the wire form of an Error: a flat struct rather than a
// further nested tagged sum, since every Kind carries the same
// (kind, message) shape.
type errBody struct {
	Kind    Kind   `cbor:"kind"`
	Message string `cbor:"message"`
}

// EncodeOk marshals a successful response: {"Ok": payload}.
func EncodeOk(payload interface{}) ([]byte, error) {
	b, err := cbor.Marshal(map[string]interface{}{"Ok": payload})
	if err != nil {
		return nil, fmt.Errorf("rpcproto: encode Ok response: %w", err)
	}
	return b, nil
}

// EncodeErr marshals a failure response: {"Err": {"kind": ..., "message": ...}}.
func EncodeErr(e *Error) ([]byte, error) {
	b, err := cbor.Marshal(map[string]interface{}{
		"Err": errBody{Kind: e.Kind, Message: e.Message},
	})
	if err != nil {
		return nil, fmt.Errorf("rpcproto: encode Err response: %w", err)
	}
	return b, nil
}

// DecodeResponse decodes a Response envelope, returning (payload, nil) on
// Ok or (nil, *Error) on Err. payload is left as raw CBOR so the caller
// can unmarshal it into the operation-specific type it expects.
func DecodeResponse(data []byte) (cbor.RawMessage, *Error, error) {
	var raw map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("rpcproto: decode response envelope: %w", err)
	}
	if ok, present := raw["Ok"]; present {
		return ok, nil, nil
	}
	if errRaw, present := raw["Err"]; present {
		var body errBody
		if err := cbor.Unmarshal(errRaw, &body); err != nil {
			return nil, nil, fmt.Errorf("rpcproto: decode Err response body: %w", err)
		}
		return nil, &Error{Kind: body.Kind, Message: body.Message}, nil
	}
	return nil, nil, fmt.Errorf("rpcproto: response envelope has neither Ok nor Err")
}
