package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/portapi/internal/config"
	"github.com/safing/portapi/internal/logging"
	"github.com/safing/portapi/pkg/client"
	"github.com/safing/portapi/pkg/model"
	"github.com/safing/portapi/pkg/testutil"
)

// execute runs the root command against address and returns its output.
func execute(t *testing.T, ctx context.Context, address string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{
		"--address", address,
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--log-level", "error",
	}
	cmd.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestApplySets(t *testing.T) {
	doc, err := applySets(`{"a":1}`, []string{"b=2", "c.d=hello", `e={"x":true}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2,"c":{"d":"hello"},"e":{"x":true}}`, doc)

	_, err = applySets(`{not json`, nil)
	assert.Error(t, err)

	_, err = applySets(`{}`, []string{"missing-equals"})
	assert.Error(t, err)
}

func TestFormatResponse(t *testing.T) {
	resp := model.OkResponse("config:a", model.RawJSON(`{"Value":{"Nested":3}}`))
	assert.Equal(t, `ok config:a {"Value":{"Nested":3}}`, formatResponse(resp, ""))
	assert.Equal(t, `ok config:a 3`, formatResponse(resp, "Value.Nested"))
	assert.Equal(t, `ok config:a`, formatResponse(resp, "Missing"))
	assert.Equal(t, `done`, formatResponse(model.DoneResponse(), ""))
	assert.Equal(t, `error not found`, formatResponse(model.ErrorResponse("not found"), ""))
}

func TestGetCommand(t *testing.T) {
	store := testutil.NewStore(map[string]string{"core:status": `{"Active":true}`})
	ms := testutil.NewMockServer(t, store.Responder())

	out, err := execute(t, context.Background(), ms.WsURL, "get", "core:status", "--path", "Active")
	require.NoError(t, err)
	assert.Equal(t, "ok core:status true\n", out)
}

func TestGetMissingRecordFails(t *testing.T) {
	ms := testutil.NewMockServer(t, testutil.NewStore(nil).Responder())

	_, err := execute(t, context.Background(), ms.WsURL, "get", "core:missing")
	var serverErr *client.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "core:missing", serverErr.Key)
}

func TestQueryCommand(t *testing.T) {
	store := testutil.NewStore(map[string]string{
		"config:a": `{"v":1}`,
		"config:b": `{"v":2}`,
		"other:c":  `{"v":3}`,
	})
	ms := testutil.NewMockServer(t, store.Responder())

	out, err := execute(t, context.Background(), ms.WsURL, "query", "config:")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.ElementsMatch(t, []string{`ok config:a {"v":1}`, `ok config:b {"v":2}`}, lines[:2])
	assert.Equal(t, "done", lines[2])
}

func TestCreateCommandWithSet(t *testing.T) {
	store := testutil.NewStore(nil)
	ms := testutil.NewMockServer(t, store.Responder())

	out, err := execute(t, context.Background(), ms.WsURL,
		"create", "config:new", `{"a":1}`, "--set", "b=two")
	require.NoError(t, err)
	assert.Equal(t, "success\n", out)

	doc, ok := store.Get("config:new")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1,"b":"two"}`, doc)
}

func TestSubscribeRunsUntilInterrupted(t *testing.T) {
	ms := testutil.NewMockServer(t, testutil.NewStore(nil).Responder())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := execute(t, ctx, ms.WsURL, "sub", "config:")
		done <- result{out, err}
	}()

	require.NoError(t, testutil.WaitFor(t, "subscription sent", 3*time.Second, func() bool {
		return len(ms.Received()) == 1
	}))
	msg, err := model.ParseMessage(ms.Received()[0])
	require.NoError(t, err)
	require.NoError(t, ms.Send(testutil.Reply(msg, "upd", "config:a", `J{"v":9}`)))

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "upd config:a {\"v\":9}\n", res.out)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

type addressRecorder struct{ addresses []string }

func (r *addressRecorder) SetAddress(address string) { r.addresses = append(r.addresses, address) }

func TestReloadKeepsFlagOverrides(t *testing.T) {
	var out bytes.Buffer
	logger, err := logging.NewWriter(&out, config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, err)

	sup := &addressRecorder{}
	r := &reloader{
		flags:  &globalFlags{address: "ws://flag:817/api/database/v1", logLevel: "warn"},
		sup:    sup,
		logger: logger,
		level:  "warn",
	}

	next := config.Default()
	next.Address = "ws://file:817/api/database/v1"
	next.Log.Level = "debug"
	r.apply(next)

	assert.Equal(t, []string{"ws://flag:817/api/database/v1"}, sup.addresses)
	assert.Equal(t, "ws://flag:817/api/database/v1", next.Address)
	assert.Equal(t, slog.LevelWarn, logger.Level())
}

func TestReloadAppliesFileWithoutFlags(t *testing.T) {
	var out bytes.Buffer
	logger, err := logging.NewWriter(&out, config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, err)

	sup := &addressRecorder{}
	r := &reloader{flags: &globalFlags{}, sup: sup, logger: logger, level: "info"}

	next := config.Default()
	next.Address = "ws://file:817/api/database/v1"
	next.Log.Level = "debug"
	r.apply(next)

	assert.Equal(t, []string{"ws://file:817/api/database/v1"}, sup.addresses)
	assert.Equal(t, slog.LevelDebug, logger.Level())
	assert.Contains(t, out.String(), "log level changed")
}
