package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/safing/portapi/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(metrics.WithRegistry(reg))

	c.FrameSent()
	c.FrameSent()
	c.FrameReceived(metrics.ResultOK)
	c.FrameReceived(metrics.ResultDecodeError)
	c.FrameReceived(metrics.ResultOK)
	c.RouteOpened()
	c.RouteOpened()
	c.RoutesClosed(1)
	c.SetConnected(true)
	c.ConnectAttempt(metrics.ResultDialError)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["portapi_frames_sent_total"])
	assert.Equal(t, 3.0, values["portapi_frames_received_total"])
	assert.Equal(t, 1.0, values["portapi_active_routes"])
	assert.Equal(t, 1.0, values["portapi_connected"])
	assert.Equal(t, 1.0, values["portapi_connect_attempts_total"])
}

func TestCollectorNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace("test"), metrics.WithSubsystem("db"))

	c.Disconnected()

	count, err := promtest.GatherAndCount(reg, "test_db_disconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCollector(t *testing.T) {
	var c *metrics.Collector

	assert.NotPanics(t, func() {
		c.FrameSent()
		c.FrameReceived(metrics.ResultOK)
		c.RouteOpened()
		c.RoutesClosed(3)
		c.SetConnected(false)
		c.ConnectAttempt(metrics.ResultConnected)
		c.Disconnected()
		c.RelayEvent(metrics.ResultOK)
	})
}
