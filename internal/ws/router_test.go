package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()

	var got ChatBody
	Register(r, "chat_message", func(ctx context.Context, c *ConnContext, req ChatBody) error {
		got = req
		return nil
	})

	env := Envelope{Event: "chat_message", Body: json.RawMessage(`{"text":"hi"}`)}
	err := r.dispatch(context.Background(), &ConnContext{SID: "sid"}, env)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
}

func TestRouterUnknownEvent(t *testing.T) {
	r := NewRouter()

	err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "nope"})
	assert.ErrorIs(t, err, errUnknownEvent)
}

func TestRouterBadPayload(t *testing.T) {
	r := NewRouter()
	Register(r, "ping", func(ctx context.Context, c *ConnContext, req PingBody) error {
		t.Fatal("handler must not run on a bad payload")
		return nil
	})

	env := Envelope{Event: "ping", Body: json.RawMessage(`{"timestamp":"not-a-number"}`)}
	assert.Error(t, r.dispatch(context.Background(), &ConnContext{}, env))
}

func TestRouterEmptyBody(t *testing.T) {
	r := NewRouter()

	called := false
	Register(r, "update_state", func(ctx context.Context, c *ConnContext, req json.RawMessage) error {
		called = true
		assert.Empty(t, req)
		return nil
	})

	require.NoError(t, r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "update_state"}))
	assert.True(t, called)
}

func TestRegisterEmptyEventPanics(t *testing.T) {
	r := NewRouter()
	assert.Panics(t, func() {
		Register(r, "", func(ctx context.Context, c *ConnContext, req struct{}) error { return nil })
	})
}
