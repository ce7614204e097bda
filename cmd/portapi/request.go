package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/model"
)

// requestKind describes one request subcommand.
type requestKind struct {
	use     string
	short   string
	payload bool
	// single ends a get on its first record.
	single bool
	build  func(key string, payload model.Payload) model.Request
}

var requestKinds = []requestKind{
	{use: "get <key>", short: "Fetch a single record", single: true,
		build: func(key string, _ model.Payload) model.Request { return model.Get(key) }},
	{use: "query <prefix>", short: "List all records below a key prefix",
		build: func(key string, _ model.Payload) model.Request { return model.Query(key) }},
	{use: "sub <prefix>", short: "Stream changes below a key prefix until interrupted",
		build: func(key string, _ model.Payload) model.Request { return model.Subscribe(key) }},
	{use: "qsub <prefix>", short: "List records below a key prefix, then stream changes",
		build: func(key string, _ model.Payload) model.Request { return model.QuerySubscribe(key) }},
	{use: "create <key> [json]", short: "Create a record", payload: true,
		build: model.Create},
	{use: "update <key> [json]", short: "Update a record", payload: true,
		build: model.Update},
	{use: "insert <key> [json]", short: "Merge fields into a record", payload: true,
		build: model.Insert},
	{use: "delete <key>", short: "Delete a record",
		build: func(key string, _ model.Payload) model.Request { return model.Delete(key) }},
}

func requestCmds(g *globalFlags) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(requestKinds))
	for _, kind := range requestKinds {
		cmds = append(cmds, kind.command(g))
	}
	return cmds
}

func (k requestKind) command(g *globalFlags) *cobra.Command {
	var (
		path string
		sets []string
	)

	args := cobra.ExactArgs(1)
	if k.payload {
		args = cobra.RangeArgs(1, 2)
	}

	cmd := &cobra.Command{
		Use:   k.use,
		Short: k.short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := k.request(args, sets)
			if err != nil {
				return err
			}
			return runRequest(cmd, g, req, k.single, path)
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "print only this gjson path of each payload")
	if k.payload {
		cmd.Flags().StringArrayVar(&sets, "set", nil, "set a field before sending, as path=value (repeatable)")
	}
	return cmd
}

func (k requestKind) request(args, sets []string) (model.Request, error) {
	var payload model.Payload
	if k.payload {
		doc := "{}"
		if len(args) > 1 {
			doc = args[1]
		}
		doc, err := applySets(doc, sets)
		if err != nil {
			return model.Request{}, err
		}
		payload = model.RawJSON(doc)
	}
	return k.build(args[0], payload), nil
}

// applySets validates doc and applies path=value edits to it. Values that are valid JSON
// are inserted raw, anything else as a string.
func applySets(doc string, sets []string) (string, error) {
	if !gjson.Valid(doc) {
		return "", fmt.Errorf("payload is not valid JSON: %s", doc)
	}
	for _, set := range sets {
		path, value, ok := strings.Cut(set, "=")
		if !ok || path == "" {
			return "", fmt.Errorf("invalid --set %q, expected path=value", set)
		}

		var err error
		if gjson.Valid(value) {
			doc, err = sjson.SetRaw(doc, path, value)
		} else {
			doc, err = sjson.Set(doc, path, value)
		}
		if err != nil {
			return "", fmt.Errorf("--set %q: %w", set, err)
		}
	}
	return doc, nil
}

func runRequest(cmd *cobra.Command, g *globalFlags, req model.Request, single bool, path string) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	cli, err := client.Connect(ctx, cfg.Address,
		client.WithLogger(logger.Logger),
		client.WithQueueSize(cfg.QueueSize),
		client.WithBufferSize(cfg.BufferSize),
	)
	if err != nil {
		return err
	}
	defer cli.Close()

	route, err := cli.Request(ctx, req)
	if err != nil {
		return err
	}
	defer route.Close()

	return stream(ctx, cmd.OutOrStdout(), route, req, single, path)
}

// stream prints responses until the request is complete. Subscriptions run until ctx is
// done.
func stream(ctx context.Context, out io.Writer, route *client.Route, req model.Request, single bool, path string) error {
	for {
		select {
		case <-ctx.Done():
			if req.IsSubscription() && errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case resp, ok := <-route.Responses():
			if !ok {
				return client.ErrRouteClosed
			}
			fmt.Fprintln(out, formatResponse(resp, path))

			switch {
			case resp.Command == model.CmdError:
				return &client.ServerError{Key: req.Key, Message: resp.Key}
			case single && resp.Command == model.CmdOk:
				return nil
			case resp.IsTerminal() && !req.IsSubscription():
				return nil
			}
		}
	}
}

// formatResponse renders a response as "<command> [key] [payload]". With a path only
// that field of a JSON payload is printed.
func formatResponse(resp model.Response, path string) string {
	var b strings.Builder
	b.WriteString(string(resp.Command))
	if resp.Key != "" {
		b.WriteByte(' ')
		b.WriteString(resp.Key)
	}

	data := resp.Payload.Data
	if path != "" && resp.Payload.IsJSON() {
		data = resp.Payload.Get(path).Raw
	}
	if data != "" {
		b.WriteByte(' ')
		b.WriteString(data)
	}
	return b.String()
}
