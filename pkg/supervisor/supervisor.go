// Package supervisor keeps a PortAPI connection alive and tells interested parties
// whether the database API is reachable.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cskr/pubsub"
	"github.com/google/uuid"
	"github.com/safing/portapi/pkg/client"
)

const topicState = "state"

// State is the reachability of the database API.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Supervisor connects to the database API, watches the connection and reconnects when it
// is lost. It retries forever until the context passed to Run is done.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	notifyMu sync.Mutex // serializes handler callbacks

	mu       sync.Mutex
	address  string
	state    State
	since    time.Time
	current  client.Client
	handlers []Handler
	bus      *pubsub.PubSub
	stopped  bool
	running  bool
}

// New creates a supervisor. Call Run to start it.
func New(opts ...Option) *Supervisor {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return NewWithOptions(o)
}

// NewWithOptions creates a supervisor from an Options struct. Zero values fall back to the
// library defaults.
func NewWithOptions(o Options) *Supervisor {
	o.applyDefaults()
	return &Supervisor{
		opts:    o,
		logger:  o.Logger.With("component", "supervisor"),
		address: o.Address,
		since:   time.Now(),
		bus:     pubsub.New(o.WatchBuffer),
	}
}

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("supervisor: already running")

// Run drives the connection until ctx is done. Watchers are closed when it returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer s.shutdown()

	retry := backoff.WithContext(backoff.NewConstantBackOff(s.opts.RetryInterval), ctx)

	for {
		cli, err := backoff.RetryNotifyWithData(func() (client.Client, error) {
			return s.connect(ctx)
		}, retry, func(err error, next time.Duration) {
			s.logger.Warn("connection attempt failed", "address", s.Address(), "error", err, "retry_in", next)
			s.publish(Disconnected, client.Client{})
		})
		if err != nil {
			s.logger.Info("supervisor stopped", "reason", ctx.Err())
			return nil
		}

		s.logger.Info("database api reachable", "address", s.Address(), "conn", cli.ID())
		s.publish(Connected, cli)

		s.monitor(ctx, cli)
		cli.Close()
		if ctx.Err() != nil {
			s.publish(Disconnected, client.Client{})
			s.logger.Info("supervisor stopped", "reason", ctx.Err())
			return nil
		}

		s.logger.Warn("connection lost", "address", s.Address(), "error", cli.Err())
		s.opts.Metrics.Disconnected()
		s.publish(Disconnected, client.Client{})
	}
}

func (s *Supervisor) connect(ctx context.Context) (client.Client, error) {
	if err := ctx.Err(); err != nil {
		return client.Client{}, backoff.Permanent(err)
	}
	opts := append([]client.Option{
		client.WithLogger(s.opts.Logger),
		client.WithMetrics(s.opts.Metrics),
		client.WithContext(ctx),
	}, s.opts.ClientOptions...)
	return client.Connect(ctx, s.Address(), opts...)
}

// monitor returns once cli terminated or ctx is done.
func (s *Supervisor) monitor(ctx context.Context, cli client.Client) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cli.IsClosed() {
				return
			}
		}
	}
}

func (s *Supervisor) publish(state State, cli client.Client) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.state != state {
		s.since = time.Now()
	}
	s.state = state
	s.current = cli
	ev := Event{State: state, Address: s.address, At: time.Now()}
	if !s.stopped {
		s.bus.TryPub(ev, topicState)
	}
	handlers := slices.Clone(s.handlers)
	s.mu.Unlock()

	s.opts.Metrics.SetConnected(state == Connected)
	for _, h := range handlers {
		notify(h, state, cli)
	}
}

func notify(h Handler, state State, cli client.Client) {
	if state == Connected {
		h.OnConnect(cli)
		return
	}
	h.OnDisconnect()
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.bus.Shutdown()
}

// Watch returns a watcher that first receives the current state and then every
// notification.
func (s *Supervisor) Watch() *Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		raw := make(chan interface{})
		close(raw)
		return newWatcher(raw, func(chan interface{}) {})
	}

	private := uuid.NewString()
	raw := s.bus.Sub(topicState, private)
	s.bus.Pub(Event{State: s.state, Address: s.address, At: s.since}, private)
	return newWatcher(raw, s.unsub)
}

func (s *Supervisor) unsub(ch chan interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	// Only TryPub is used for shared events, so the registry never blocks on ch.
	s.bus.Unsub(ch)
}

// RegisterHandler adds h and immediately calls it with the current state.
func (s *Supervisor) RegisterHandler(h Handler) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	state, cli := s.state, s.current
	s.mu.Unlock()

	notify(h, state, cli)
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Since returns when the current state was entered.
func (s *Supervisor) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

// Client returns the live client, if any.
func (s *Supervisor) Client() (client.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected || s.current.IsClosed() {
		return client.Client{}, false
	}
	return s.current, true
}

// Address returns the endpoint used for the next connection attempt.
func (s *Supervisor) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// SetAddress switches the endpoint. A live connection to the old endpoint is closed so
// the supervisor reconnects to the new one.
func (s *Supervisor) SetAddress(address string) {
	s.mu.Lock()
	if address == "" || address == s.address {
		s.mu.Unlock()
		return
	}
	s.address = address
	s.mu.Unlock()

	s.logger.Info("address changed", "address", address)
	s.Reconnect()
}

// Reconnect closes the live connection, if any. The supervisor notices on its next poll
// and connects again.
func (s *Supervisor) Reconnect() {
	s.mu.Lock()
	cli := s.current
	s.mu.Unlock()
	cli.Close()
}
