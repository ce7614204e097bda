// Package metrics exposes Prometheus instrumentation for PortAPI connections.
//
// All methods are safe to call on a nil *Collector, so instrumented packages do not need
// to check whether metrics were configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame results used as label values.
const (
	ResultOK           = "ok"
	ResultDecodeError  = "decode_error"
	ResultModelError   = "model_error"
	ResultUnrouted     = "unrouted"
	ResultStaleRoute   = "stale_route"
	ResultConnected    = "connected"
	ResultDialError    = "dial_error"
	ResultPublishError = "publish_error"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "portapi").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "portapi",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the PortAPI metrics.
type Collector struct {
	framesSent      prometheus.Counter
	framesReceived  *prometheus.CounterVec
	activeRoutes    prometheus.Gauge
	connected       prometheus.Gauge
	connectAttempts *prometheus.CounterVec
	disconnects     prometheus.Counter
	relayEvents     *prometheus.CounterVec
}

// New registers the PortAPI metrics. Registering twice on the same registry panics, as
// with any promauto factory.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_sent_total",
			Help:        "Total number of request frames written to the socket",
			ConstLabels: config.ConstLabels,
		}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of frames read from the socket, by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		activeRoutes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_routes",
			Help:        "Number of requests currently waiting for responses",
			ConstLabels: config.ConstLabels,
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connected",
			Help:        "1 while the supervisor holds a live connection",
			ConstLabels: config.ConstLabels,
		}),

		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connect_attempts_total",
			Help:        "Total number of connection attempts, by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "disconnects_total",
			Help:        "Total number of lost connections",
			ConstLabels: config.ConstLabels,
		}),

		relayEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "relay_events_total",
			Help:        "Total number of relayed subscription events, by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),
	}
}

// FrameSent counts a written request frame.
func (c *Collector) FrameSent() {
	if c == nil {
		return
	}
	c.framesSent.Inc()
}

// FrameReceived counts an inbound frame with its outcome.
func (c *Collector) FrameReceived(result string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(result).Inc()
}

// RouteOpened increments the active route gauge.
func (c *Collector) RouteOpened() {
	if c == nil {
		return
	}
	c.activeRoutes.Inc()
}

// RoutesClosed decrements the active route gauge by n.
func (c *Collector) RoutesClosed(n int) {
	if c == nil || n == 0 {
		return
	}
	c.activeRoutes.Sub(float64(n))
}

// ConnectAttempt counts a connection attempt with its outcome.
func (c *Collector) ConnectAttempt(result string) {
	if c == nil {
		return
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// SetConnected records the supervisor state.
func (c *Collector) SetConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}

// Disconnected counts a lost connection.
func (c *Collector) Disconnected() {
	if c == nil {
		return
	}
	c.disconnects.Inc()
}

// RelayEvent counts a relayed event with its outcome.
func (c *Collector) RelayEvent(result string) {
	if c == nil {
		return
	}
	c.relayEvents.WithLabelValues(result).Inc()
}
