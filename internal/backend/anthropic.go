package backend

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/nyxo-labs/anthrobridge/internal/apierr"
)

// AnthropicClient forwards an already-Anthropic-shaped request straight to
// a real Anthropic-compatible endpoint, for the "backend_style: anthropic"
// supplemented feature (SPEC_FULL §"Supplemented features" 1): when the
// backend already speaks the Messages API, translation is unnecessary and
// actively lossy, so the proxy becomes a thin authenticated relay instead.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewAnthropicClient builds a passthrough client for baseURL.
func NewAnthropicClient(baseURL, apiKey string) *AnthropicClient {
	return &AnthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 0},
	}
}

func (c *AnthropicClient) newRequest(ctx context.Context, raw []byte, stream bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if stream {
		req.Header.Set("accept", "text/event-stream")
	}
	return req, nil
}

// Relay forwards a non-streaming Messages API request verbatim and returns
// the raw backend response body for pass-through to the caller.
func (c *AnthropicClient) Relay(ctx context.Context, raw []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, raw, false)
	if err != nil {
		return nil, apierr.Internal("failed to build passthrough request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.UpstreamDown("passthrough request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.UpstreamProtocol("failed to read passthrough response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apierr.UpstreamDown("backend returned HTTP "+http.StatusText(resp.StatusCode)+": "+truncate(body, 500), nil)
	}
	return body, nil
}

// RelayStreamHandle is a live passthrough SSE response: its lines are
// already valid Anthropic events and can be forwarded untouched.
type RelayStreamHandle struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

// RelayStream forwards a streaming Messages API request verbatim.
func (c *AnthropicClient) RelayStream(ctx context.Context, raw []byte) (*RelayStreamHandle, error) {
	req, err := c.newRequest(ctx, raw, true)
	if err != nil {
		return nil, apierr.Internal("failed to build passthrough request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.UpstreamDown("passthrough stream request failed", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apierr.UpstreamDown("backend returned HTTP "+http.StatusText(resp.StatusCode)+": "+truncate(body, 500), nil)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &RelayStreamHandle{resp: resp, scanner: scanner}, nil
}

// Close releases the underlying response body.
func (h *RelayStreamHandle) Close() error { return h.resp.Body.Close() }

// NextLine returns the next raw SSE line (including blank separator lines),
// for byte-for-byte relay. ok is false at EOF.
func (h *RelayStreamHandle) NextLine() (line string, ok bool, err error) {
	if !h.scanner.Scan() {
		if serr := h.scanner.Err(); serr != nil {
			return "", false, apierr.UpstreamProtocol("passthrough stream read error", serr)
		}
		return "", false, nil
	}
	return h.scanner.Text(), true, nil
}

// DecodeEventName extracts the `event: ...` name from a raw SSE line, or
// "" if line isn't an event-name line. Used by the server to stop relaying
// once a passed-through stream has reached message_stop.
func DecodeEventName(line string) string {
	if !strings.HasPrefix(line, "event:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
}
