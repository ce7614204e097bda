package model

import (
	"fmt"
	"strings"
)

// Request is a typed command sent to the database API. Key holds the record key or the
// query prefix. Payload is only used by Create, Update and Insert.
type Request struct {
	Command Command
	Key     string
	Payload Payload
}

// Get fetches a single record.
func Get(key string) Request { return Request{Command: CmdGet, Key: key} }

// Query fetches all records matching a key prefix or query.
func Query(prefix string) Request { return Request{Command: CmdQuery, Key: prefix} }

// Subscribe streams changes of records matching prefix.
func Subscribe(prefix string) Request { return Request{Command: CmdSubscribe, Key: prefix} }

// QuerySubscribe returns the current matches and then streams changes.
func QuerySubscribe(prefix string) Request {
	return Request{Command: CmdQuerySubscribe, Key: prefix}
}

// Create stores a new record.
func Create(key string, p Payload) Request {
	return Request{Command: CmdCreate, Key: key, Payload: p}
}

// Update modifies an existing record.
func Update(key string, p Payload) Request {
	return Request{Command: CmdUpdate, Key: key, Payload: p}
}

// Insert stores a record, replacing any existing one.
func Insert(key string, p Payload) Request {
	return Request{Command: CmdInsert, Key: key, Payload: p}
}

// Delete removes a record.
func Delete(key string) Request { return Request{Command: CmdDelete, Key: key} }

// Cancel asks the server to stop an operation.
func Cancel() Request { return Request{Command: CmdCancel} }

// IsSubscription reports whether the request produces an unbounded stream.
func (r Request) IsSubscription() bool {
	return r.Command == CmdSubscribe || r.Command == CmdQuerySubscribe
}

// Message converts the request into a frame with id 0. The connection assigns the real id
// when the frame is sent.
func (r Request) Message() (Message, error) {
	s, ok := requestShapes[r.Command]
	if !ok {
		return Message{}, fmt.Errorf("request %q: %w", r.Command, ErrUnknownCommand)
	}
	if s.key && strings.Contains(r.Key, Separator) {
		return Message{}, fmt.Errorf("request %s key %q: %w", r.Command, r.Key, ErrInvalidToken)
	}
	return build(r.Command, s, r.Key, r.Payload), nil
}

// RequestFromMessage converts a frame into a typed request.
func RequestFromMessage(m Message) (Request, error) {
	cmd := Command(m.Command)
	s, ok := requestShapes[cmd]
	if !ok {
		return Request{}, fmt.Errorf("request %q: %w", m.Command, ErrUnknownCommand)
	}
	key, payload, err := extract(m, s)
	if err != nil {
		return Request{}, fmt.Errorf("request %s: %w", cmd, err)
	}
	return Request{Command: cmd, Key: key, Payload: payload}, nil
}
