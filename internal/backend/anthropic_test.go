package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelayForwardsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"id":"msg_1","type":"message"}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.URL, "sk-test")
	out, err := c.Relay(context.Background(), []byte(`{"model":"claude-3"}`))
	require.NoError(t, err)
	require.Contains(t, string(out), "msg_1")
}

func TestRelayUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.URL, "")
	_, err := c.Relay(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestDecodeEventName(t *testing.T) {
	require.Equal(t, "message_stop", DecodeEventName("event: message_stop"))
	require.Equal(t, "", DecodeEventName("data: {}"))
}
