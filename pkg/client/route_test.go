package client

import (
	"sync"
	"testing"
	"time"

	"github.com/safing/portapi/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAsync(r *Route, stop, lost <-chan struct{}) <-chan pushResult {
	result := make(chan pushResult, 1)
	go func() { result <- r.push(model.DoneResponse(), stop, lost) }()
	return result
}

func TestRouteID(t *testing.T) {
	r := newRoute(1)
	id, sent := r.ID()
	assert.Zero(t, id)
	assert.False(t, sent)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.markSent(42)
	}()
	for {
		id, sent := r.ID()
		if sent {
			assert.Equal(t, uint64(42), id, "a sent route never reports a stale id")
			break
		}
	}
	wg.Wait()
}

func TestRoutePushWaitsForSpace(t *testing.T) {
	r := newRoute(1)
	stop := make(chan struct{})

	require.Equal(t, pushed, r.push(model.SuccessResponse(), stop, nil))

	result := pushAsync(r, stop, nil)
	select {
	case <-result:
		t.Fatal("push into a full route returned")
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, model.CmdSuccess, (<-r.Responses()).Command)
	select {
	case res := <-result:
		assert.Equal(t, pushed, res)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after the consumer read")
	}
	assert.Equal(t, model.CmdDone, (<-r.Responses()).Command)
}

func TestRoutePushReleasedByClose(t *testing.T) {
	r := newRoute(1)
	require.Equal(t, pushed, r.push(model.SuccessResponse(), nil, nil))

	result := pushAsync(r, nil, nil)
	r.Close()
	select {
	case res := <-result:
		assert.Equal(t, pushReleased, res)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the waiting push")
	}

	// Closed routes refuse further frames right away.
	assert.Equal(t, pushReleased, r.push(model.DoneResponse(), nil, nil))
}

func TestRoutePushAborted(t *testing.T) {
	for _, name := range []string{"stop", "lost"} {
		t.Run(name, func(t *testing.T) {
			r := newRoute(1)
			require.Equal(t, pushed, r.push(model.SuccessResponse(), nil, nil))

			stop, lost := make(chan struct{}), make(chan struct{})
			result := pushAsync(r, stop, lost)
			if name == "stop" {
				close(stop)
			} else {
				close(lost)
			}
			select {
			case res := <-result:
				assert.Equal(t, pushAborted, res)
			case <-time.After(time.Second):
				t.Fatal("push was not aborted")
			}
		})
	}
}

func TestRouteFinishKeepsBufferedFrames(t *testing.T) {
	r := newRoute(2)
	require.Equal(t, pushed, r.push(model.SuccessResponse(), nil, nil))
	r.finish()
	r.finish()

	resp, ok := <-r.Responses()
	require.True(t, ok)
	assert.Equal(t, model.CmdSuccess, resp.Command)
	_, ok = <-r.Responses()
	assert.False(t, ok)
}
