// pkg/model/message.go
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator delimits the fields of a wire frame.
const Separator = "|"

// Message is a single protocol frame as exchanged with the database API:
//
//	<id>|<command>[|<key>][|<payload>]
//
// Key and Payload are optional. A payload can only be carried together with a key
// because fields are interpreted by position.
type Message struct {
	ID      uint64
	Command string
	Key     *string
	Payload *Payload
}

// KeyValue returns the key and whether the message carries one.
func (m Message) KeyValue() (string, bool) {
	if m.Key == nil {
		return "", false
	}
	return *m.Key, true
}

// Encode serializes the message into a wire frame. It refuses messages that could not be
// parsed back into the same value.
func (m Message) Encode() (string, error) {
	if m.Command == "" {
		return "", ErrMissingCommand
	}
	if strings.Contains(m.Command, Separator) {
		return "", fmt.Errorf("command %q: %w", m.Command, ErrInvalidToken)
	}
	if m.Key != nil && strings.Contains(*m.Key, Separator) {
		return "", fmt.Errorf("key %q: %w", *m.Key, ErrInvalidToken)
	}
	if m.Payload != nil && m.Key == nil {
		return "", ErrPayloadWithoutKey
	}
	return m.String(), nil
}

// String renders the frame without validation. Use Encode for anything sent on the wire.
func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(m.ID, 10))
	sb.WriteString(Separator)
	sb.WriteString(m.Command)
	if m.Key != nil {
		sb.WriteString(Separator)
		sb.WriteString(*m.Key)
	}
	if m.Payload != nil {
		sb.WriteString(Separator)
		sb.WriteString(m.Payload.String())
	}
	return sb.String()
}

// ParseMessage parses one received frame. Everything after the third separator belongs
// to the payload.
func ParseMessage(line string) (Message, error) {
	parts := strings.SplitN(line, Separator, 4)
	if len(parts) == 0 {
		return Message{}, ErrMissingID
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidID, parts[0])
	}

	if len(parts) < 2 {
		return Message{}, ErrMissingCommand
	}

	msg := Message{ID: id, Command: parts[1]}
	if len(parts) > 2 {
		key := parts[2]
		msg.Key = &key
	}
	if len(parts) > 3 {
		p := ParsePayload(parts[3])
		msg.Payload = &p
	}
	return msg, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Message) MarshalText() ([]byte, error) {
	s, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Message) UnmarshalText(text []byte) error {
	parsed, err := ParseMessage(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// StringPtr returns a pointer to s. Handy when building messages by hand.
func StringPtr(s string) *string {
	return &s
}
