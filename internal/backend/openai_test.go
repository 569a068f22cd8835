package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

func TestCompleteRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("authorization"))
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "secret")
	resp, err := c.Complete(context.Background(), wire.OpenAIRequest{Model: "gpt", Messages: []wire.OpenAIMsg{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Choices[0].Message.Content)
}

func TestCompleteUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "")
	_, err := c.Complete(context.Background(), wire.OpenAIRequest{Model: "gpt"})
	require.Error(t, err)
}

func TestStreamTextAndToolCallChunks(t *testing.T) {
	body := strings.Join([]string{
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"He"},"finish_reason":null}]}`,
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather"}}]},"finish_reason":null}]}`,
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\""}}]},"finish_reason":null}]}`,
		`data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		"",
	}, "\n\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "")
	h, err := c.Stream(context.Background(), wire.OpenAIRequest{Model: "gpt", Stream: true})
	require.NoError(t, err)
	defer h.Close()

	var kinds []wire.ChunkKind
	for {
		chunk, ok, err := h.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		kinds = append(kinds, chunk.Kind)
	}
	require.Equal(t, []wire.ChunkKind{wire.ChunkText, wire.ChunkToolCallStart, wire.ChunkToolArgsDelta, wire.ChunkFinish}, kinds)
}
