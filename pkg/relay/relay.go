// Package relay republishes PortAPI subscription traffic to a message bus.
//
// A Relay is registered as a supervisor handler. On every connect it issues a
// query-subscribe for each configured key prefix and publishes every record event as
// JSON to a subject derived from the record key.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/metrics"
	"github.com/safing/portapi/pkg/model"
	"github.com/tidwall/gjson"
)

// Event is the message published for each record change.
type Event struct {
	Op      string          `json:"op"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Options configures a Relay.
type Options struct {
	// Prefixes are the database key prefixes to relay.
	Prefixes []string

	// SubjectPrefix is prepended to every subject (default: "portapi").
	SubjectPrefix string

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Relay forwards record events to a Publisher.
type Relay struct {
	pub     Publisher
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a relay publishing through pub.
func New(pub Publisher, opts Options) *Relay {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = "portapi"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{
		pub:     pub,
		opts:    opts,
		logger:  opts.Logger.With("component", "relay"),
		metrics: opts.Metrics,
	}
}

// OnConnect starts relaying on the new connection.
func (r *Relay) OnConnect(cli client.Client) {
	r.stop()

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	for _, prefix := range r.opts.Prefixes {
		r.wg.Add(1)
		go func(prefix string) {
			defer r.wg.Done()
			r.follow(ctx, cli, prefix)
		}(prefix)
	}
}

// OnDisconnect stops relaying. Subscriptions are restored on the next connect.
func (r *Relay) OnDisconnect() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close stops relaying, waits for in-flight events and closes the publisher.
func (r *Relay) Close() error {
	r.stop()
	return r.pub.Close()
}

func (r *Relay) stop() {
	r.OnDisconnect()
	r.wg.Wait()
}

func (r *Relay) follow(ctx context.Context, cli client.Client, prefix string) {
	route, err := cli.Request(ctx, model.QuerySubscribe(prefix))
	if err != nil {
		r.logger.Warn("failed to subscribe", "prefix", prefix, "error", err)
		return
	}
	defer route.Close()
	r.logger.Info("relaying", "prefix", prefix)

	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-route.Responses():
			if !ok {
				r.logger.Debug("subscription ended", "prefix", prefix)
				return
			}
			r.handle(ctx, prefix, resp)
		}
	}
}

func (r *Relay) handle(ctx context.Context, prefix string, resp model.Response) {
	switch resp.Command {
	case model.CmdOk, model.CmdNew, model.CmdUpd, model.CmdDel:
	case model.CmdError, model.CmdWarning:
		r.logger.Warn("server reported a problem", "prefix", prefix, "command", resp.Command, "message", resp.Text())
		return
	default:
		return
	}

	data, err := json.Marshal(eventFor(resp))
	if err != nil {
		r.metrics.RelayEvent(metrics.ResultPublishError)
		r.logger.Warn("failed to encode event", "key", resp.Key, "error", err)
		return
	}
	subject := Subject(r.opts.SubjectPrefix, resp.Key)
	if err := r.pub.Publish(ctx, subject, data); err != nil {
		r.metrics.RelayEvent(metrics.ResultPublishError)
		r.logger.Warn("failed to publish event", "subject", subject, "error", err)
		return
	}
	r.metrics.RelayEvent(metrics.ResultOK)
}

func eventFor(resp model.Response) Event {
	ev := Event{Op: string(resp.Command), Key: resp.Key}
	if !resp.HasRecord() {
		return ev
	}
	if resp.Payload.IsJSON() && gjson.Valid(resp.Payload.Data) {
		ev.Payload = json.RawMessage(resp.Payload.Data)
		return ev
	}
	// Opaque payloads travel as a JSON string.
	quoted, _ := json.Marshal(resp.Payload.Data)
	ev.Payload = quoted
	return ev
}

// Subject maps a database key to a NATS subject below prefix. Key separators become
// subject tokens; characters NATS reserves are replaced with '_'.
func Subject(prefix, key string) string {
	tokens := strings.FieldsFunc(key, func(r rune) bool {
		return r == ':' || r == '/' || r == '.'
	})
	for i, tok := range tokens {
		tokens[i] = strings.Map(func(r rune) rune {
			switch r {
			case '*', '>', ' ', '\t', '\r', '\n':
				return '_'
			}
			return r
		}, tok)
	}
	if len(tokens) == 0 {
		tokens = []string{"_"}
	}
	return fmt.Sprintf("%s.%s", prefix, strings.Join(tokens, "."))
}
