package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher delivers relay events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// NATSOptions contains configuration options for the NATS publisher.
type NATSOptions struct {
	// URL is the NATS server URL.
	URL string

	// Name is the connection name shown by the NATS server.
	Name string

	// ConnectionOptions are additional options for the NATS connection.
	ConnectionOptions []nats.Option
}

// NATSPublisher publishes relay events to NATS.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(opts NATSOptions) (*NATSPublisher, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Name == "" {
		opts.Name = "portapi-relay"
	}

	connOpts := append([]nats.Option{nats.Name(opts.Name)}, opts.ConnectionOptions...)
	conn, err := nats.Connect(opts.URL, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends data to subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.conn == nil {
		return errors.New("nats publisher is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return p.conn.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
