package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safing/portapi/pkg/relay"
	"github.com/safing/portapi/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	event   relay.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []published
	fail   bool
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("bus unavailable")
	}
	var ev relay.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{subject: subject, event: ev})
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"core:status":           "portapi.core.status",
		"runtime:system/status": "portapi.runtime.system.status",
		"config:a.b/c d":        "portapi.config.a.b.c_d",
		"notifications:all/*":   "portapi.notifications.all._",
		"":                      "portapi._",
		"cache:intel/>/x//y":    "portapi.cache.intel._.x.y",
	}
	for key, want := range cases {
		assert.Equal(t, want, relay.Subject("portapi", key), "key %q", key)
	}
}

func TestRelayPublishesRecords(t *testing.T) {
	store := testutil.NewStore(map[string]string{
		"runtime:subsystems/core": `{"Name":"core"}`,
	})
	ms := testutil.NewMockServer(t, store.Responder())
	cli := testutil.NewTestClient(t, ms.WsURL)

	pub := &fakePublisher{}
	r := relay.New(pub, relay.Options{
		Prefixes: []string{"runtime:subsystems/"},
		Logger:   testutil.DefaultLogger,
	})
	defer r.Close()

	r.OnConnect(cli)

	require.NoError(t, testutil.WaitFor(t, "initial record relayed", 2*time.Second, func() bool {
		return len(pub.snapshot()) == 1
	}))

	require.NoError(t, ms.Send(`0|upd|runtime:subsystems/core|J{"Name":"core","Up":true}`))
	require.NoError(t, ms.Send(`0|del|runtime:subsystems/core`))
	require.NoError(t, ms.Send(`0|warning|something odd`))

	require.NoError(t, testutil.WaitFor(t, "updates relayed", 2*time.Second, func() bool {
		return len(pub.snapshot()) == 3
	}))

	msgs := pub.snapshot()
	assert.Equal(t, "portapi.runtime.subsystems.core", msgs[0].subject)
	assert.Equal(t, "ok", msgs[0].event.Op)
	assert.JSONEq(t, `{"Name":"core"}`, string(msgs[0].event.Payload))

	assert.Equal(t, "upd", msgs[1].event.Op)
	assert.JSONEq(t, `{"Name":"core","Up":true}`, string(msgs[1].event.Payload))

	assert.Equal(t, "del", msgs[2].event.Op)
	assert.Equal(t, "runtime:subsystems/core", msgs[2].event.Key)
	assert.Empty(t, msgs[2].event.Payload)

	assert.Equal(t, []string{"0|qsub|runtime:subsystems/"}, ms.Received())
}

func TestRelayStopsOnDisconnect(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	cli := testutil.NewTestClient(t, ms.WsURL)

	pub := &fakePublisher{}
	r := relay.New(pub, relay.Options{Prefixes: []string{"a:", "b:"}, Logger: testutil.DefaultLogger})

	r.OnConnect(cli)
	require.NoError(t, testutil.WaitFor(t, "subscriptions sent", 2*time.Second, func() bool {
		return len(ms.Received()) == 2
	}))

	r.OnDisconnect()
	require.NoError(t, testutil.WaitFor(t, "routes released", 2*time.Second, func() bool {
		// Routes are released on the next frame for them.
		_ = ms.Send("0|upd|a:x|J{}")
		_ = ms.Send("1|upd|b:x|J{}")
		return cli.Stats().ActiveRoutes == 0
	}))

	require.NoError(t, r.Close())
	pub.mu.Lock()
	assert.True(t, pub.closed)
	pub.mu.Unlock()
}

func TestRelayPublishFailureIsNotFatal(t *testing.T) {
	store := testutil.NewStore(map[string]string{"a:1": `{}`, "a:2": `{}`})
	ms := testutil.NewMockServer(t, store.Responder())
	cli := testutil.NewTestClient(t, ms.WsURL)

	pub := &fakePublisher{fail: true}
	r := relay.New(pub, relay.Options{Prefixes: []string{"a:"}, Logger: testutil.DefaultLogger})
	defer r.Close()

	r.OnConnect(cli)
	require.NoError(t, testutil.WaitFor(t, "subscription sent", 2*time.Second, func() bool {
		return len(ms.Received()) == 1
	}))

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()

	require.NoError(t, ms.Send(`0|new|a:3|J{"n":3}`))
	require.NoError(t, testutil.WaitFor(t, "later event relayed", 2*time.Second, func() bool {
		for _, m := range pub.snapshot() {
			if m.event.Key == "a:3" {
				return true
			}
		}
		return false
	}))
	assert.False(t, cli.IsClosed())
}
