package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownMessageType is returned for an envelope type the receiver does not handle.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMalformed is returned when a frame or payload is not valid JSON for its type.
	ErrMalformed = errors.New("malformed message")
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal wraps payload in an envelope of the given type.
func Marshal(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// MustMarshal is Marshal for payloads that cannot fail to encode.
func MustMarshal(t MessageType, payload any) []byte {
	data, err := Marshal(t, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses an envelope and validates the payload of client message
// types against their schema.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v. Unknown fields are
// rejected so typos surface as protocol errors. An absent payload decodes as
// the zero value.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 || bytes.Equal(e.Payload, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// ErrorMessage builds an error frame.
func ErrorMessage(code, message string) []byte {
	return MustMarshal(TypeError, Error{Code: code, Message: message})
}
