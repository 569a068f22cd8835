package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyxo-labs/anthrobridge/internal/backend"
	"github.com/nyxo-labs/anthrobridge/internal/cache"
	"github.com/nyxo-labs/anthrobridge/internal/config"
	"github.com/nyxo-labs/anthrobridge/internal/logging"
)

func testServer(t *testing.T, backendURL string, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
		cfg.BackendBaseURL = backendURL
	}
	log := logging.New(logging.LevelOff)
	elig, err := cache.NewEligibilityPredicate("")
	require.NoError(t, err)
	c := cache.New(cfg.CacheMaxBytes, cache.NewMetrics())
	openaiClient := backend.NewOpenAIClient(backendURL, cfg.BackendAPIKey)
	return New(cfg, log, openaiClient, nil, c, elig, nil)
}

func TestHealthEndpoint(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],"usage":{}}`))
	}))
	defer backendSrv.Close()

	s := testServer(t, backendSrv.URL, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, true, body["backend_ok"])
}

func TestMessagesRejectsEmptyMessages(t *testing.T) {
	s := testServer(t, "http://unused.invalid", nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"gpt-4o","messages":[]}`))
	s.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request_error")
}

func TestMessagesRequiresAuthWhenConfigured(t *testing.T) {
	cfg := config.Defaults()
	cfg.BackendBaseURL = "http://unused.invalid"
	cfg.RequireAuth = true
	cfg.AuthTokens = []string{"secret-token"}
	s := testServer(t, cfg.BackendBaseURL, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	s.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	req2.Header.Set("x-api-key", "secret-token")
	s.Engine().ServeHTTP(w2, req2)
	require.NotEqual(t, http.StatusUnauthorized, w2.Code)
}

func TestNonStreamingMessagesRoundTrip(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`data: {"id":"1","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`,
			`data: {"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n\n"))
			flusher.Flush()
		}
	}))
	defer backendSrv.Close()

	s := testServer(t, backendSrv.URL, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	s.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "end_turn", resp["stop_reason"])
	content := resp["content"].([]interface{})
	require.Len(t, content, 1)
	block := content[0].(map[string]interface{})
	require.Equal(t, "Hello", block["text"])
}

func TestStreamingMessagesEmitsSSESequence(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`data: {"id":"1","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
			`data: {"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n\n"))
			flusher.Flush()
		}
	}))
	defer backendSrv.Close()

	s := testServer(t, backendSrv.URL, nil)
	ts := httptest.NewServer(s.Engine())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}
	require.Contains(t, events, "message_start")
	require.Contains(t, events, "message_stop")
}
