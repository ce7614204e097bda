package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/safing/portapi/pkg/metrics"
	"github.com/safing/portapi/pkg/model"
	"golang.org/x/time/rate"
)

type command struct {
	msg   model.Message
	route *Route
}

// actor owns one websocket connection. Its run loop is the only goroutine that writes to
// the socket or modifies the route table; readLoop is the only one that reads from it.
// Delivery into a full route suspends the run loop, which in turn stops readLoop from
// handing over more frames.
type actor struct {
	id      string
	address string
	conn    *websocket.Conn
	config  clientConfig
	logger  *slog.Logger
	metrics *metrics.Collector

	dispatch chan command
	done     chan struct{}
	cancel   context.CancelFunc

	// sendMu is held shared while a handle enqueues a command and exclusively while
	// terminate drains the queue, so no command is left behind in dispatch.
	sendMu sync.RWMutex

	lost    chan struct{} // closed by readLoop when the socket fails
	readErr error         // readable after lost is closed

	mu     sync.RWMutex // guards routes and nextID for Stats readers
	routes map[uint64]*Route
	nextID uint64

	dropLog rate.Sometimes
	err     error // termination cause, readable after done
}

func newActor(id, address string, conn *websocket.Conn, cfg clientConfig) *actor {
	return &actor{
		id:       id,
		address:  address,
		conn:     conn,
		config:   cfg,
		logger:   cfg.logger.With("conn", id),
		metrics:  cfg.metrics,
		dispatch: make(chan command, cfg.queueSize),
		done:     make(chan struct{}),
		lost:     make(chan struct{}),
		routes:   make(map[uint64]*Route),
		dropLog:  rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}
}

func (a *actor) run(ctx context.Context) {
	frames := make(chan []byte)
	go a.readLoop(frames)

	var cause error
loop:
	for {
		select {
		case data := <-frames:
			a.handleFrame(ctx, data)
		case <-a.lost:
			cause = a.readErr
			break loop
		case cmd := <-a.dispatch:
			if err := a.send(ctx, cmd); err != nil {
				cause = err
				break loop
			}
		case <-ctx.Done():
			cause = ctx.Err()
			break loop
		}
	}

	a.terminate(cause, ctx.Err() != nil)
}

func (a *actor) readLoop(frames chan<- []byte) {
	for {
		typ, data, err := a.conn.Read(context.Background())
		if err != nil {
			a.readErr = err
			close(a.lost)
			return
		}
		if typ != websocket.MessageText {
			a.drop(metrics.ResultDecodeError, "ignoring non-text frame", nil, data)
			continue
		}
		select {
		case frames <- data:
		case <-a.done:
			return
		}
	}
}

func (a *actor) handleFrame(ctx context.Context, data []byte) {
	msg, err := model.ParseMessage(string(data))
	if err != nil {
		a.drop(metrics.ResultDecodeError, "failed to decode frame", err, data)
		return
	}
	resp, err := model.ResponseFromMessage(msg)
	if err != nil {
		a.drop(metrics.ResultModelError, "failed to convert frame", err, data)
		return
	}

	route, ok := a.routes[msg.ID]
	if !ok {
		a.metrics.FrameReceived(metrics.ResultUnrouted)
		a.logger.Debug("no route for frame", "id", msg.ID, "command", msg.Command)
		return
	}
	switch route.push(resp, ctx.Done(), a.lost) {
	case pushed:
		a.metrics.FrameReceived(metrics.ResultOK)
	case pushReleased:
		a.mu.Lock()
		delete(a.routes, msg.ID)
		a.mu.Unlock()
		route.finish()
		a.metrics.FrameReceived(metrics.ResultStaleRoute)
		a.metrics.RoutesClosed(1)
		a.logger.Debug("released closed route", "id", msg.ID)
	case pushAborted:
		a.logger.Debug("frame dropped on shutdown", "id", msg.ID)
	}
}

// send stamps the next id, writes the frame and records the route. A write error is
// returned and ends the connection.
func (a *actor) send(ctx context.Context, cmd command) error {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	msg := cmd.msg
	msg.ID = id
	line, err := msg.Encode()
	if err != nil {
		a.logger.Warn("dropping unencodable request", "id", id, "error", err)
		cmd.route.finish()
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, a.config.writeTimeout)
	defer cancel()
	if err := a.conn.Write(writeCtx, websocket.MessageText, []byte(line)); err != nil {
		a.logger.Warn("failed to write frame", "id", id, "error", err)
		cmd.route.finish()
		return err
	}

	cmd.route.markSent(id)
	a.mu.Lock()
	a.routes[id] = cmd.route
	a.mu.Unlock()
	a.metrics.FrameSent()
	a.metrics.RouteOpened()
	return nil
}

func (a *actor) terminate(cause error, local bool) {
	a.err = cause
	close(a.done)
	a.cancel()

	a.mu.Lock()
	n := len(a.routes)
	for id, route := range a.routes {
		route.finish()
		delete(a.routes, id)
	}
	a.mu.Unlock()
	a.metrics.RoutesClosed(n)

	// Commands still queued were never sent; their routes end without a response.
	a.sendMu.Lock()
drain:
	for {
		select {
		case cmd := <-a.dispatch:
			cmd.route.finish()
		default:
			break drain
		}
	}
	a.sendMu.Unlock()

	if local {
		a.logger.Info("closing connection", "address", a.address, "routes", n)
		_ = a.conn.Close(websocket.StatusNormalClosure, "client closed")
		return
	}

	status := websocket.CloseStatus(cause)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		a.logger.Info("connection closed by server", "address", a.address, "status", status, "routes", n)
	} else {
		a.logger.Warn("connection failed", "address", a.address, "error", cause, "routes", n)
	}
	_ = a.conn.CloseNow()
}

func (a *actor) drop(result, reason string, err error, data []byte) {
	a.metrics.FrameReceived(result)
	a.dropLog.Do(func() {
		a.logger.Warn(reason, "error", err, "frame", truncate(data, 128))
	})
}

func (a *actor) stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{ActiveRoutes: len(a.routes), NextID: a.nextID}
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
