package supervisor

import (
	"log/slog"
	"time"

	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/metrics"
)

const (
	// DefaultAddress is the local Portmaster database API endpoint.
	DefaultAddress = "ws://127.0.0.1:817/api/database/v1"

	defaultPollInterval  = 1 * time.Second
	defaultRetryInterval = 2 * time.Second
	defaultWatchBuffer   = 16
)

// Options contains configuration values for NewWithOptions.
type Options struct {
	Address       string
	PollInterval  time.Duration
	RetryInterval time.Duration
	WatchBuffer   int
	Logger        *slog.Logger
	Metrics       *metrics.Collector
	ClientOptions []client.Option
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Address:       DefaultAddress,
		PollInterval:  defaultPollInterval,
		RetryInterval: defaultRetryInterval,
		WatchBuffer:   defaultWatchBuffer,
		Logger:        slog.Default(),
	}
}

// Option configures a Supervisor.
type Option func(*Options)

// WithAddress sets the websocket endpoint.
func WithAddress(address string) Option {
	return func(o *Options) {
		if address != "" {
			o.Address = address
		}
	}
}

// WithPollInterval sets how often a live connection is checked.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithRetryInterval sets the pause after a failed connection attempt.
func WithRetryInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RetryInterval = d
		}
	}
}

// WithWatchBuffer sets the channel capacity of each Watcher.
func WithWatchBuffer(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.WatchBuffer = n
		}
	}
}

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics reports connection state to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithClientOptions adds options passed to client.Connect on every attempt.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *Options) {
		o.ClientOptions = append(o.ClientOptions, opts...)
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.Address == "" {
		o.Address = def.Address
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = def.RetryInterval
	}
	if o.WatchBuffer <= 0 {
		o.WatchBuffer = def.WatchBuffer
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
}
