// Package types provides shared types used across the gateway packages.
package types

import (
	"encoding/json"
	"fmt"
)

// Envelope is the only value handed back to the model from a tool call.
// It has exactly two shapes once serialized: a success object carrying
// operation-specific fields, or {"error": "<message>"}.
type Envelope struct {
	fields map[string]any
	err    string
}

// Success builds a success envelope. A nil map serializes as {}.
func Success(fields map[string]any) Envelope {
	if fields == nil {
		fields = map[string]any{}
	}
	return Envelope{fields: fields}
}

// Failure builds an error envelope.
func Failure(msg string) Envelope {
	if msg == "" {
		msg = "unknown error"
	}
	return Envelope{err: msg}
}

// Failuref builds an error envelope from a format string.
func Failuref(format string, args ...any) Envelope {
	return Failure(fmt.Sprintf(format, args...))
}

// FromError builds an error envelope carrying err's message.
func FromError(err error) Envelope {
	if err == nil {
		return Failure("")
	}
	return Failure(err.Error())
}

// IsError reports whether this is an error envelope.
func (e Envelope) IsError() bool {
	return e.err != ""
}

// Error returns the error message, or "" for a success envelope.
func (e Envelope) Error() string {
	return e.err
}

// Get returns a success field.
func (e Envelope) Get(key string) (any, bool) {
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns the success fields. Nil for an error envelope.
func (e Envelope) Fields() map[string]any {
	return e.fields
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.err != "" {
		return json.Marshal(map[string]string{"error": e.err})
	}
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.fields)
}

// String serializes the envelope for the model. A success payload that
// cannot be serialized degrades to an error envelope, so the result is
// always valid JSON in one of the two shapes.
func (e Envelope) String() string {
	data, err := e.MarshalJSON()
	if err != nil {
		data, _ = Failuref("failed to encode result: %v", err).MarshalJSON()
	}
	return string(data)
}
