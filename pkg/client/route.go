package client

import (
	"sync"
	"sync/atomic"

	"github.com/safing/portapi/pkg/model"
)

// Route receives the responses of one request.
//
// The channel returned by Responses is bounded. When it is full the connection waits for
// the consumer before routing any further frame, so a consumer that stops reading must
// Close its route. The channel is closed once the connection released the route, which
// happens on the first frame after Close or when the connection terminates. Frames
// already buffered stay readable after that.
type Route struct {
	sink   chan model.Response
	closed chan struct{}

	id   atomic.Uint64
	sent atomic.Bool

	closeOnce  sync.Once
	finishOnce sync.Once
}

type pushResult int

const (
	pushed pushResult = iota
	// pushReleased means the consumer closed the route.
	pushReleased
	// pushAborted means the connection is shutting down.
	pushAborted
)

func newRoute(size int) *Route {
	return &Route{
		sink:   make(chan model.Response, size),
		closed: make(chan struct{}),
	}
}

// Responses returns the stream of responses.
func (r *Route) Responses() <-chan model.Response {
	return r.sink
}

// ID returns the identifier assigned to the request and whether it was sent yet.
func (r *Route) ID() (uint64, bool) {
	if !r.sent.Load() {
		return 0, false
	}
	return r.id.Load(), true
}

// Close drops interest in further responses. The connection releases the route the next
// time a frame arrives for it. Close is idempotent.
func (r *Route) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
	})
}

func (r *Route) markSent(id uint64) {
	r.id.Store(id)
	r.sent.Store(true)
}

// push delivers resp, waiting while the sink is full. It gives up when the consumer closes
// the route or when one of the abort channels is closed.
func (r *Route) push(resp model.Response, stop, lost <-chan struct{}) pushResult {
	select {
	case <-r.closed:
		return pushReleased
	default:
	}

	select {
	case r.sink <- resp:
		return pushed
	case <-r.closed:
		return pushReleased
	case <-stop:
		return pushAborted
	case <-lost:
		return pushAborted
	}
}

// finish closes the response channel. Only the actor calls it, never concurrently with
// push.
func (r *Route) finish() {
	r.finishOnce.Do(func() {
		close(r.sink)
	})
}
