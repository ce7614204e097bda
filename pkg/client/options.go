package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/safing/portapi/pkg/metrics"
)

const (
	defaultQueueSize    = 64 // pending commands between handles and the actor
	defaultBufferSize   = 64 // per-route response buffer
	defaultWriteTimeout = 5 * time.Second
	defaultDialTimeout  = 10 * time.Second
	defaultReadLimit    = 1024 * 1024 // 1MB
)

type clientConfig struct {
	logger       *slog.Logger
	dialOptions  *websocket.DialOptions
	metrics      *metrics.Collector
	parent       context.Context
	writeTimeout time.Duration
	dialTimeout  time.Duration
	queueSize    int
	bufferSize   int
	readLimit    int64
}

func defaultConfig() clientConfig {
	return clientConfig{
		logger:       slog.Default(),
		dialOptions:  &websocket.DialOptions{HTTPClient: http.DefaultClient},
		parent:       context.Background(),
		writeTimeout: defaultWriteTimeout,
		dialTimeout:  defaultDialTimeout,
		queueSize:    defaultQueueSize,
		bufferSize:   defaultBufferSize,
		readLimit:    defaultReadLimit,
	}
}

// Option configures a connection.
type Option func(*clientConfig)

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialOptions sets custom websocket.DialOptions.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *clientConfig) {
		if opts != nil {
			c.dialOptions = opts
		}
	}
}

// WithMetrics reports connection activity to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithContext sets the parent context of the connection. When it is cancelled the
// connection shuts down as if Close had been called. The context passed to Connect only
// bounds the dial.
func WithContext(ctx context.Context) Option {
	return func(c *clientConfig) {
		if ctx != nil {
			c.parent = ctx
		}
	}
}

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// WithDialTimeout bounds the websocket handshake.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.dialTimeout = timeout
		}
	}
}

// WithQueueSize sets the capacity of the command queue shared by all handles.
func WithQueueSize(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithBufferSize sets the default response buffer of a route.
func WithBufferSize(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithReadLimit sets the maximum size of an inbound frame.
func WithReadLimit(n int64) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.readLimit = n
		}
	}
}

// Options contains configuration values for ConnectWithOptions.
type Options struct {
	Logger       *slog.Logger
	DialOptions  *websocket.DialOptions
	Metrics      *metrics.Collector
	Context      context.Context
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	QueueSize    int
	BufferSize   int
	ReadLimit    int64
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	cfg := defaultConfig()
	return Options{
		Logger:       cfg.logger,
		DialOptions:  cfg.dialOptions,
		Context:      cfg.parent,
		WriteTimeout: cfg.writeTimeout,
		DialTimeout:  cfg.dialTimeout,
		QueueSize:    cfg.queueSize,
		BufferSize:   cfg.bufferSize,
		ReadLimit:    cfg.readLimit,
	}
}

// ConnectWithOptions establishes a connection using an Options struct. Zero values fall
// back to the library defaults.
func ConnectWithOptions(ctx context.Context, address string, opts Options) (Client, error) {
	return Connect(ctx, address,
		WithLogger(opts.Logger),
		WithDialOptions(opts.DialOptions),
		WithMetrics(opts.Metrics),
		WithContext(opts.Context),
		WithWriteTimeout(opts.WriteTimeout),
		WithDialTimeout(opts.DialTimeout),
		WithQueueSize(opts.QueueSize),
		WithBufferSize(opts.BufferSize),
		WithReadLimit(opts.ReadLimit),
	)
}
