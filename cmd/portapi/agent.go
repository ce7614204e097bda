package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/safing/portapi/internal/config"
	"github.com/safing/portapi/internal/logging"
	"github.com/safing/portapi/internal/statusapi"
	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/metrics"
	"github.com/safing/portapi/pkg/relay"
	"github.com/safing/portapi/pkg/supervisor"
)

func agentCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Keep a supervised connection with status API and NATS relay",
		Long: `Run the connection supervisor until interrupted.

The agent reconnects whenever the database API goes away, serves
/healthz, /status and /metrics on the configured status address, relays
the configured key prefixes to NATS and reloads the config file when it
changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			defer logger.Close()
			return runAgent(cmd.Context(), g, cfg, logger)
		},
	}
}

func runAgent(ctx context.Context, g *globalFlags, cfg *config.Config, logger *logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg))

	sup := supervisor.New(
		supervisor.WithAddress(cfg.Address),
		supervisor.WithPollInterval(cfg.PollInterval),
		supervisor.WithRetryInterval(cfg.RetryInterval),
		supervisor.WithLogger(logger.Logger),
		supervisor.WithMetrics(m),
		supervisor.WithClientOptions(
			client.WithQueueSize(cfg.QueueSize),
			client.WithBufferSize(cfg.BufferSize),
		),
	)

	if len(cfg.Relay.Prefixes) > 0 {
		pub, err := relay.NewNATSPublisher(relay.NATSOptions{
			URL:  cfg.Relay.NATSURL,
			Name: "portapi-agent",
		})
		if err != nil {
			return err
		}
		r := relay.New(pub, relay.Options{
			Prefixes:      cfg.Relay.Prefixes,
			SubjectPrefix: cfg.Relay.SubjectPrefix,
			Logger:        logger.Logger,
			Metrics:       m,
		})
		defer r.Close()
		sup.RegisterHandler(r)
	}

	eg, ctx := errgroup.WithContext(ctx)

	watcher := sup.Watch()
	eg.Go(func() error {
		logStates(logger.Logger, watcher)
		return nil
	})

	eg.Go(func() error {
		defer watcher.Close()
		return sup.Run(ctx)
	})

	if cfg.Status.Listen != "" {
		api := statusapi.New(sup, reg, logger.Logger)
		eg.Go(func() error {
			return api.ListenAndServe(ctx, cfg.Status.Listen)
		})
	}

	if g.configPath != "" {
		r := &reloader{flags: g, sup: sup, logger: logger, level: cfg.Log.Level}
		eg.Go(func() error {
			return config.Watch(ctx, g.configPath, logger.Logger, r.apply)
		})
	}

	return eg.Wait()
}

// reloader applies a reloaded config to the running agent. Flags given on the command line
// keep precedence over the file.
type reloader struct {
	flags  *globalFlags
	sup    interface{ SetAddress(string) }
	logger *logging.Logger
	level  string
}

func (r *reloader) apply(next *config.Config) {
	r.flags.applyOverrides(next)
	if next.Log.Level != r.level && r.logger.SetLevel(next.Log.Level) {
		r.level = next.Log.Level
		r.logger.Info("log level changed", "level", next.Log.Level)
	}
	r.sup.SetAddress(next.Address)
}

// logStates logs every state transition until the watcher closes.
func logStates(logger *slog.Logger, w *supervisor.Watcher) {
	var last *supervisor.State
	for ev := range w.C() {
		if last != nil && *last == ev.State {
			continue
		}
		state := ev.State
		last = &state
		logger.Info("connection state", "state", ev.State, "address", ev.Address)
	}
}
