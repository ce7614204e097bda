package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PayloadKind tells how the payload text is encoded.
type PayloadKind uint8

const (
	// PayloadUnknown is an opaque payload passed through as-is.
	PayloadUnknown PayloadKind = iota
	// PayloadJSON is a JSON document, tagged with a leading 'J' on the wire.
	PayloadJSON
)

const jsonTag = 'J'

// Payload is the optional last field of a frame.
type Payload struct {
	Kind PayloadKind
	Data string
}

// RawJSON wraps an already encoded JSON document.
func RawJSON(doc string) Payload {
	return Payload{Kind: PayloadJSON, Data: doc}
}

// Opaque wraps text that is not interpreted by the client. Text starting with 'J' is read
// back as a JSON payload by ParsePayload; the wire bytes are kept but the kind is not.
func Opaque(text string) Payload {
	return Payload{Kind: PayloadUnknown, Data: text}
}

// JSONPayload marshals v into a JSON payload.
func JSONPayload(v any) (Payload, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("marshal payload: %w", err)
	}
	return RawJSON(string(blob)), nil
}

// ParsePayload decodes the payload field of a frame.
func ParsePayload(field string) Payload {
	if len(field) > 0 && field[0] == jsonTag {
		return RawJSON(field[1:])
	}
	return Opaque(field)
}

// String returns the wire representation.
func (p Payload) String() string {
	if p.Kind == PayloadJSON {
		return string(jsonTag) + p.Data
	}
	return p.Data
}

// IsJSON reports whether the payload holds a JSON document.
func (p Payload) IsJSON() bool {
	return p.Kind == PayloadJSON
}

// Decode unmarshals a JSON payload into v.
func (p Payload) Decode(v any) error {
	if p.Kind != PayloadJSON {
		return ErrOpaquePayload
	}
	if err := json.Unmarshal([]byte(p.Data), v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Get looks up a single value using gjson path syntax. Opaque payloads yield an empty
// result.
func (p Payload) Get(path string) gjson.Result {
	if p.Kind != PayloadJSON {
		return gjson.Result{}
	}
	return gjson.Get(p.Data, path)
}

// Set returns a copy of the JSON payload with the value at path replaced. An empty
// payload is treated as an empty object.
func (p Payload) Set(path string, value any) (Payload, error) {
	if p.Kind != PayloadJSON {
		return Payload{}, ErrOpaquePayload
	}
	doc := p.Data
	if doc == "" {
		doc = "{}"
	}
	updated, err := sjson.Set(doc, path, value)
	if err != nil {
		return Payload{}, fmt.Errorf("set %q: %w", path, err)
	}
	return RawJSON(updated), nil
}
