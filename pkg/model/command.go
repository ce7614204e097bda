package model

// Command is a protocol command token.
type Command string

// Request commands (client → server).
const (
	CmdGet            Command = "get"
	CmdQuery          Command = "query"
	CmdSubscribe      Command = "sub"
	CmdQuerySubscribe Command = "qsub"
	CmdCreate         Command = "create"
	CmdUpdate         Command = "update"
	CmdInsert         Command = "insert"
	CmdDelete         Command = "delete"
	CmdCancel         Command = "cancel"
)

// Response commands (server → client).
const (
	CmdOk      Command = "ok"
	CmdNew     Command = "new"
	CmdUpd     Command = "upd"
	CmdDel     Command = "del"
	CmdSuccess Command = "success"
	CmdError   Command = "error"
	CmdWarning Command = "warning"
	CmdDone    Command = "done"
)

type shape struct {
	key     bool
	payload bool
}

var requestShapes = map[Command]shape{
	CmdGet:            {key: true},
	CmdQuery:          {key: true},
	CmdSubscribe:      {key: true},
	CmdQuerySubscribe: {key: true},
	CmdCreate:         {key: true, payload: true},
	CmdUpdate:         {key: true, payload: true},
	CmdInsert:         {key: true, payload: true},
	CmdDelete:         {key: true},
	CmdCancel:         {},
}

var responseShapes = map[Command]shape{
	CmdOk:      {key: true, payload: true},
	CmdNew:     {key: true, payload: true},
	CmdUpd:     {key: true, payload: true},
	CmdDel:     {key: true},
	CmdSuccess: {},
	CmdError:   {key: true},
	CmdWarning: {key: true},
	CmdDone:    {},
}

// RequestCommands lists the request vocabulary.
func RequestCommands() []Command {
	return []Command{
		CmdGet, CmdQuery, CmdSubscribe, CmdQuerySubscribe,
		CmdCreate, CmdUpdate, CmdInsert, CmdDelete, CmdCancel,
	}
}

// ResponseCommands lists the response vocabulary.
func ResponseCommands() []Command {
	return []Command{
		CmdOk, CmdNew, CmdUpd, CmdDel,
		CmdSuccess, CmdError, CmdWarning, CmdDone,
	}
}

// build turns the fields of a typed request or response into a message with a
// placeholder id.
func build(cmd Command, s shape, key string, payload Payload) Message {
	msg := Message{Command: string(cmd)}
	if s.key {
		k := key
		msg.Key = &k
	}
	if s.payload {
		p := payload
		msg.Payload = &p
	}
	return msg
}

// extract pulls the fields a command requires out of a parsed message.
func extract(m Message, s shape) (string, Payload, error) {
	var (
		key     string
		payload Payload
	)
	if s.key {
		if m.Key == nil {
			return "", Payload{}, ErrMissingKey
		}
		key = *m.Key
	}
	if s.payload {
		if m.Payload == nil {
			return "", Payload{}, ErrMissingPayload
		}
		payload = *m.Payload
	}
	return key, payload, nil
}
