package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/safing/portapi/pkg/client"
)

var (
	// Default logger for tests
	defaultSlogHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	DefaultLogger = slog.New(defaultSlogHandler)
)

// NewTestClient connects to url with the test logger and closes the client when the test
// ends.
func NewTestClient(t *testing.T, url string, opts ...client.Option) client.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	finalOpts := append([]client.Option{client.WithLogger(DefaultLogger)}, opts...)
	cli, err := client.Connect(ctx, url, finalOpts...)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() {
		cli.Close()
	})
	return cli
}
