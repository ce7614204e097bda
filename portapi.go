// Package portapi is a client for the Portmaster database API.
//
// It re-exports the most used types of the sub packages so simple programs only need
// this import:
//
//	cli, err := portapi.Connect(ctx, portapi.DefaultAddress)
//	rec, err := portapi.Fetch[Status](ctx, cli, "runtime:system/status")
package portapi

import (
	"context"

	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/model"
	"github.com/safing/portapi/pkg/supervisor"
)

// Re-export core types
type (
	Message     = model.Message
	Payload     = model.Payload
	Command     = model.Command
	Request     = model.Request
	Response    = model.Response
	Client      = client.Client
	Route       = client.Route
	Option      = client.Option
	ServerError = client.ServerError
	Supervisor  = supervisor.Supervisor
	State       = supervisor.State
	Handler     = supervisor.Handler
)

// DefaultAddress is the database API endpoint of a local Portmaster.
const DefaultAddress = supervisor.DefaultAddress

// Re-export connection states
const (
	Disconnected = supervisor.Disconnected
	Connected    = supervisor.Connected
)

// Re-export error types
var (
	ErrClosed         = client.ErrClosed
	ErrInvalidAddress = client.ErrInvalidAddress
	ErrRouteClosed    = client.ErrRouteClosed
	ErrNoResult       = client.ErrNoResult
	ErrUnknownCommand = model.ErrUnknownCommand
)

// Connect opens a single connection to address.
func Connect(ctx context.Context, address string, opts ...client.Option) (Client, error) {
	return client.Connect(ctx, address, opts...)
}

// NewSupervisor creates a supervisor that keeps a connection to the database API.
func NewSupervisor(opts ...supervisor.Option) *Supervisor {
	return supervisor.New(opts...)
}

// Fetch gets the record at key and decodes it into a T.
func Fetch[T any](ctx context.Context, c Client, key string) (*T, error) {
	return client.Fetch[T](ctx, c, key)
}

// JSONPayload marshals v into a JSON payload.
func JSONPayload(v any) (Payload, error) {
	return model.JSONPayload(v)
}
