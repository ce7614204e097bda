package model

import "errors"

// Decode and conversion errors. They are returned wrapped; use errors.Is.
var (
	ErrMissingID         = errors.New("missing id")
	ErrInvalidID         = errors.New("invalid id")
	ErrMissingCommand    = errors.New("missing command")
	ErrMissingKey        = errors.New("missing key")
	ErrMissingPayload    = errors.New("missing payload")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrInvalidToken      = errors.New("token contains the field separator")
	ErrPayloadWithoutKey = errors.New("payload requires a key")
	ErrOpaquePayload     = errors.New("payload is not JSON")
)
