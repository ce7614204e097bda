package model_test

import (
	"testing"

	"github.com/safing/portapi/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMessage(t *testing.T) {
	body := model.RawJSON(`{"v":1}`)

	cases := []struct {
		name string
		req  model.Request
		want string
	}{
		{"get", model.Get("core:a"), "0|get|core:a"},
		{"query", model.Query("config:"), "0|query|config:"},
		{"sub", model.Subscribe("runtime:"), "0|sub|runtime:"},
		{"qsub", model.QuerySubscribe("runtime:"), "0|qsub|runtime:"},
		{"create", model.Create("k", body), `0|create|k|J{"v":1}`},
		{"update", model.Update("k", body), `0|update|k|J{"v":1}`},
		{"insert", model.Insert("k", body), `0|insert|k|J{"v":1}`},
		{"delete", model.Delete("k"), "0|delete|k"},
		{"cancel", model.Cancel(), "0|cancel"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := tc.req.Message()
			require.NoError(t, err)
			assert.Equal(t, uint64(0), msg.ID)

			line, err := msg.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.want, line)

			back, err := model.RequestFromMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, tc.req, back)
		})
	}
}

func TestRequestValidation(t *testing.T) {
	t.Run("Unknown command", func(t *testing.T) {
		_, err := model.Request{Command: "ok", Key: "x"}.Message()
		assert.ErrorIs(t, err, model.ErrUnknownCommand)
	})

	t.Run("Separator in key", func(t *testing.T) {
		_, err := model.Get("a|b").Message()
		assert.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("Cancel ignores key", func(t *testing.T) {
		msg, err := model.Request{Command: model.CmdCancel, Key: "a|b"}.Message()
		require.NoError(t, err)
		assert.Nil(t, msg.Key)
	})
}

func TestRequestFromMessage(t *testing.T) {
	t.Run("Missing key", func(t *testing.T) {
		_, err := model.RequestFromMessage(model.Message{Command: "get"})
		assert.ErrorIs(t, err, model.ErrMissingKey)
	})

	t.Run("Missing payload", func(t *testing.T) {
		_, err := model.RequestFromMessage(model.Message{Command: "create", Key: model.StringPtr("k")})
		assert.ErrorIs(t, err, model.ErrMissingPayload)
	})

	t.Run("Response token", func(t *testing.T) {
		_, err := model.RequestFromMessage(model.Message{Command: "done"})
		assert.ErrorIs(t, err, model.ErrUnknownCommand)
	})
}

func TestRequestIsSubscription(t *testing.T) {
	assert.True(t, model.Subscribe("a").IsSubscription())
	assert.True(t, model.QuerySubscribe("a").IsSubscription())
	assert.False(t, model.Query("a").IsSubscription())
	assert.False(t, model.Cancel().IsSubscription())
}
