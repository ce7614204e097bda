package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/safing/portapi/pkg/model"
)

// ErrNoResult is returned by Fetch when the server finished the request without a record.
var ErrNoResult = errors.New("portapi: no result")

// ServerError is an error response sent by the server.
type ServerError struct {
	Key     string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("portapi: server error for %q: %s", e.Key, e.Message)
}

// Fetch gets a single record and decodes its JSON payload into T.
//
// Example:
//
//	status, err := client.Fetch[Status](ctx, cli, "runtime:system/status")
func Fetch[T any](ctx context.Context, c Client, key string) (*T, error) {
	route, err := c.Request(ctx, model.Get(key))
	if err != nil {
		return nil, err
	}
	defer route.Close()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-route.Responses():
			if !ok {
				return nil, ErrRouteClosed
			}
			switch resp.Command {
			case model.CmdOk:
				var result T
				if err := resp.Payload.Decode(&result); err != nil {
					return nil, fmt.Errorf("fetch %s: %w", key, err)
				}
				return &result, nil
			case model.CmdError:
				return nil, &ServerError{Key: key, Message: resp.Text()}
			case model.CmdDone:
				return nil, fmt.Errorf("fetch %s: %w", key, ErrNoResult)
			}
		}
	}
}

// Collect gathers every response of a bounded request until the server ends it with
// done, success or error. The route is closed on return.
func Collect(ctx context.Context, route *Route) ([]model.Response, error) {
	defer route.Close()

	var out []model.Response
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case resp, ok := <-route.Responses():
			if !ok {
				return out, ErrRouteClosed
			}
			out = append(out, resp)
			if resp.IsTerminal() {
				return out, nil
			}
		}
	}
}
