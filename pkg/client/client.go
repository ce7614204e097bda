// Package client implements a multiplexing client for the Portmaster database API.
//
// A single websocket connection is driven by an internal actor goroutine. Client values
// are cheap handles to that actor: they can be copied freely and used concurrently, and
// each Request gets its own Route carrying the responses for that request only.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/safing/portapi/pkg/metrics"
	"github.com/safing/portapi/pkg/model"
)

var (
	// ErrClosed is returned when a request is issued on a terminated connection.
	ErrClosed = errors.New("portapi: connection closed")
	// ErrInvalidAddress is returned by Connect for addresses that are not ws:// or wss:// URLs.
	ErrInvalidAddress = errors.New("portapi: invalid address")
	// ErrRouteClosed is returned when a route ended before the expected response arrived.
	ErrRouteClosed = errors.New("portapi: route closed")
)

// Stats is a snapshot of the connection's route table.
type Stats struct {
	ActiveRoutes int
	NextID       uint64
}

// Client is a handle to a live connection. The zero value behaves like a closed
// connection.
type Client struct {
	actor      *actor
	bufferSize int
}

// Connect dials address and starts the connection actor. ctx bounds the dial only; use
// WithContext or Close to control the lifetime of the connection.
func Connect(ctx context.Context, address string, opts ...Option) (Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(address)
	if err != nil {
		return Client{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Client{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.dialTimeout)
	conn, httpResp, err := websocket.Dial(dialCtx, address, cfg.dialOptions)
	dialCancel()
	if err != nil {
		cfg.metrics.ConnectAttempt(metrics.ResultDialError)
		if httpResp != nil {
			return Client{}, fmt.Errorf("dial %s failed (status: %s): %w", address, httpResp.Status, err)
		}
		return Client{}, fmt.Errorf("dial %s failed: %w", address, err)
	}
	conn.SetReadLimit(cfg.readLimit)
	cfg.metrics.ConnectAttempt(metrics.ResultConnected)

	a := newActor(uuid.NewString(), address, conn, cfg)
	runCtx, cancel := context.WithCancel(cfg.parent)
	a.cancel = cancel
	go a.run(runCtx)

	a.logger.Info("connected", "address", address)
	return Client{actor: a, bufferSize: cfg.bufferSize}, nil
}

// ID returns the connection id used in log lines.
func (c Client) ID() string {
	if c.actor == nil {
		return ""
	}
	return c.actor.id
}

// Request sends req and returns the route its responses arrive on. Conversion errors are
// returned before anything is sent.
func (c Client) Request(ctx context.Context, req model.Request) (*Route, error) {
	return c.RequestBuffer(ctx, req, c.bufferSize)
}

// RequestBuffer is like Request with an explicit response buffer size.
func (c Client) RequestBuffer(ctx context.Context, req model.Request, size int) (*Route, error) {
	msg, err := req.Message()
	if err != nil {
		return nil, err
	}
	if _, err := msg.Encode(); err != nil {
		return nil, fmt.Errorf("request %s: %w", req.Command, err)
	}
	if c.actor == nil {
		return nil, ErrClosed
	}
	if size <= 0 {
		size = defaultBufferSize
	}

	a := c.actor
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if c.IsClosed() {
		return nil, ErrClosed
	}

	route := newRoute(size)
	select {
	case a.dispatch <- command{msg: msg, route: route}:
		return route, nil
	case <-a.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsClosed reports whether the connection terminated.
func (c Client) IsClosed() bool {
	if c.actor == nil {
		return true
	}
	select {
	case <-c.actor.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the connection terminates.
func (c Client) Done() <-chan struct{} {
	if c.actor == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.actor.done
}

// Err returns the reason the connection terminated, or nil while it is alive.
func (c Client) Err() error {
	if !c.IsClosed() {
		return nil
	}
	if c.actor == nil {
		return ErrClosed
	}
	return c.actor.err
}

// Stats returns the number of active routes and the next request id.
func (c Client) Stats() Stats {
	if c.actor == nil {
		return Stats{}
	}
	return c.actor.stats()
}

// Close terminates the connection and waits for the actor to finish. Every open route is
// closed. Closing an already closed client is a no-op.
func (c Client) Close() error {
	if c.actor == nil {
		return nil
	}
	c.actor.cancel()
	<-c.actor.done
	return nil
}
