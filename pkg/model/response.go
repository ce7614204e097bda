package model

import (
	"fmt"
	"strings"
)

// Response is a typed frame received from the database API. For Error and Warning the
// message text is carried in Key, which is where the server puts it on the wire.
type Response struct {
	Command Command
	Key     string
	Payload Payload
}

// OkResponse is a single result of a get or query.
func OkResponse(key string, p Payload) Response {
	return Response{Command: CmdOk, Key: key, Payload: p}
}

// NewResponse announces a record created while subscribed.
func NewResponse(key string, p Payload) Response {
	return Response{Command: CmdNew, Key: key, Payload: p}
}

// UpdateResponse announces a changed record.
func UpdateResponse(key string, p Payload) Response {
	return Response{Command: CmdUpd, Key: key, Payload: p}
}

// DeleteResponse announces a deleted record.
func DeleteResponse(key string) Response { return Response{Command: CmdDel, Key: key} }

// SuccessResponse acknowledges a write.
func SuccessResponse() Response { return Response{Command: CmdSuccess} }

// ErrorResponse reports a failed operation.
func ErrorResponse(message string) Response { return Response{Command: CmdError, Key: message} }

// WarningResponse reports a non fatal problem.
func WarningResponse(message string) Response {
	return Response{Command: CmdWarning, Key: message}
}

// DoneResponse ends a logical exchange.
func DoneResponse() Response { return Response{Command: CmdDone} }

// Text returns the message of an Error or Warning response.
func (r Response) Text() string {
	if r.Command == CmdError || r.Command == CmdWarning {
		return r.Key
	}
	return ""
}

// HasRecord reports whether the response carries a record, i.e. ok, new or upd.
func (r Response) HasRecord() bool {
	switch r.Command {
	case CmdOk, CmdNew, CmdUpd:
		return true
	}
	return false
}

// IsTerminal reports whether the response ends a non-subscription exchange.
func (r Response) IsTerminal() bool {
	switch r.Command {
	case CmdDone, CmdError, CmdSuccess:
		return true
	}
	return false
}

// Message converts the response into a frame with id 0.
func (r Response) Message() (Message, error) {
	s, ok := responseShapes[r.Command]
	if !ok {
		return Message{}, fmt.Errorf("response %q: %w", r.Command, ErrUnknownCommand)
	}
	if s.key && strings.Contains(r.Key, Separator) {
		return Message{}, fmt.Errorf("response %s key %q: %w", r.Command, r.Key, ErrInvalidToken)
	}
	return build(r.Command, s, r.Key, r.Payload), nil
}

// ResponseFromMessage converts a frame into a typed response.
func ResponseFromMessage(m Message) (Response, error) {
	cmd := Command(m.Command)
	s, ok := responseShapes[cmd]
	if !ok {
		return Response{}, fmt.Errorf("response %q: %w", m.Command, ErrUnknownCommand)
	}
	key, payload, err := extract(m, s)
	if err != nil {
		return Response{}, fmt.Errorf("response %s: %w", cmd, err)
	}
	return Response{Command: cmd, Key: key, Payload: payload}, nil
}
