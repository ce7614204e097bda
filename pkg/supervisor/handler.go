package supervisor

import "github.com/safing/portapi/pkg/client"

// Handler is notified about connection state changes. Callbacks run on the supervisor
// goroutine, one at a time and in order, so they must not block. A callback must not call
// RegisterHandler.
type Handler interface {
	OnConnect(cli client.Client)
	OnDisconnect()
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Connect    func(cli client.Client)
	Disconnect func()
}

// OnConnect implements Handler.
func (h HandlerFuncs) OnConnect(cli client.Client) {
	if h.Connect != nil {
		h.Connect(cli)
	}
}

// OnDisconnect implements Handler.
func (h HandlerFuncs) OnDisconnect() {
	if h.Disconnect != nil {
		h.Disconnect()
	}
}
