// Command portapi talks to the Portmaster database API from the command line and runs
// the portapi agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/safing/portapi/internal/config"
	"github.com/safing/portapi/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	address    string
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "portapi",
		Short: "Client for the Portmaster database API",
		Long: `portapi speaks the line based websocket protocol of the Portmaster
database API.

Use the request commands to read, watch and modify records, or run
"portapi agent" to keep a supervised connection with a status API and
an optional NATS relay.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	wd, _ := os.Getwd()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.address, "address", "a", "", "database API websocket URL (overrides config)")
	pf.StringVarP(&g.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&g.envFile, "env-file", filepath.Join(wd, ".env"), "optional .env file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(requestCmds(g)...)
	rootCmd.AddCommand(
		agentCmd(g),
		versionCmd(),
	)

	return rootCmd
}

// setup loads the configuration and builds the logger. Flags take precedence over the
// environment, which takes precedence over the config file.
func (g *globalFlags) setup() (*config.Config, *logging.Logger, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	g.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// applyOverrides copies the flags that were set onto cfg.
func (g *globalFlags) applyOverrides(cfg *config.Config) {
	if g.address != "" {
		cfg.Address = g.address
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
}
