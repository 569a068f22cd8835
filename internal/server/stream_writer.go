package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nyxo-labs/anthrobridge/internal/apierr"
	"github.com/nyxo-labs/anthrobridge/internal/backend"
	"github.com/nyxo-labs/anthrobridge/internal/cache"
	"github.com/nyxo-labs/anthrobridge/internal/stream"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// runToCompletion drives the backend stream through a Stream Transformer
// feeding an Accumulator, for non-streaming requests (§4.1).
func (s *Server) runToCompletion(ctx context.Context, requestID, respModel string, openaiReq wire.OpenAIRequest) (*wire.AnthropicResponse, error) {
	h, err := s.openai.Stream(ctx, openaiReq)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	acc := stream.NewAccumulator()
	t := stream.New(acc, nil)
	t.Start(requestID, respModel)

	for {
		chunk, ok, err := h.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if !t.Done() {
				t.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "stop"})
			}
			break
		}
		t.Feed(*chunk)
		if t.Done() {
			break
		}
	}

	resp := acc.Response()
	return &resp, nil
}

// sseSink adapts stream.EventSink to write directly to the gin response
// writer as Anthropic-shaped SSE frames.
type sseSink struct {
	c       *gin.Context
	flusher http.Flusher
}

func (sk *sseSink) Emit(ev wire.AnthropicEvent) {
	sk.c.SSEvent(ev.Name, ev.Data)
	if sk.flusher != nil {
		sk.flusher.Flush()
	}
}

// streamMessages implements the full §4.1 streaming lifecycle: SSE
// headers, message_start, the keepalive ticker, the terminal watchdog,
// and backpressure-aware close. Upstream reads happen on a background
// goroutine so the keepalive and watchdog timers keep firing even while
// the backend is slow to produce its first chunk.
func (s *Server) streamMessages(c *gin.Context, requestID, respModel string, openaiReq wire.OpenAIRequest) {
	c.Header("content-type", "text/event-stream")
	c.Header("cache-control", "no-cache")
	c.Header("connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h, err := s.openai.Stream(ctx, openaiReq)
	if err != nil {
		sk := &sseSink{c: c, flusher: flusher}
		emitStreamError(sk, err)
		return
	}
	defer h.Close()

	keepaliveInterval := durationMS(s.cfg.KeepaliveIntervalMS, 10*time.Second)
	watchdogDuration := durationMS(s.cfg.TerminalWatchdogMS, 60*time.Second)
	drainTimeout := durationMS(s.cfg.DrainTimeoutMS, 5*time.Second)

	keepaliveTicker := time.NewTicker(keepaliveInterval)
	defer keepaliveTicker.Stop()
	watchdog := time.NewTimer(watchdogDuration)
	defer watchdog.Stop()

	firstChunkReceived := false
	sk := &sseSink{c: c, flusher: flusher}
	t := stream.New(sk, nil)
	t.Start(requestID, respModel)

	type nextResult struct {
		chunk *wire.UpstreamChunk
		ok    bool
		err   error
	}
	chunkCh := make(chan nextResult, 1)
	requestNext := func() {
		go func() {
			chunk, ok, err := h.Next()
			chunkCh <- nextResult{chunk, ok, err}
		}()
	}
	requestNext()

	keepaliveN := 0
	watchdogFired := false

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-keepaliveTicker.C:
			if firstChunkReceived {
				continue
			}
			keepaliveN++
			s.cache.Metrics().KeepalivesSent.Add(1)
			fmt.Fprintf(c.Writer, ": keepalive %d\n\n", keepaliveN)
			if flusher != nil {
				flusher.Flush()
			}

		case <-watchdog.C:
			watchdogFired = true
			s.cache.Metrics().WatchdogFires.Add(1)
			t.ForceTerminate()
			cancel()
			break loop

		case r := <-chunkCh:
			if r.err != nil {
				if !firstChunkReceived {
					keepaliveTicker.Stop()
				}
				emitStreamError(sk, r.err)
				break loop
			}
			if !r.ok {
				if !t.Done() {
					t.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "stop"})
				}
				break loop
			}
			if !firstChunkReceived {
				firstChunkReceived = true
				keepaliveTicker.Stop()
			}
			t.Feed(*r.chunk)
			if t.Done() {
				break loop
			}
			requestNext()
		}
	}

	if watchdogFired {
		s.cache.Metrics().RecordOutcome(cache.OutcomeTimeout)
	}
	drainClose(c, flusher, drainTimeout, s.cache.Metrics())
}

// emitStreamError writes the §7 error-event path, used both when the
// connection to the backend fails before any chunk was produced (but
// after SSE headers were already sent) and for mid-stream upstream
// failures.
func emitStreamError(sk *sseSink, err error) {
	sk.Emit(wire.AnthropicEvent{Name: wire.EventError, Data: errorPayload(err)})
}

func errorPayload(err error) map[string]interface{} {
	ae, ok := err.(*apierr.Error)
	msg := err.Error()
	typ := "api_error"
	if ok {
		msg = ae.Message
		typ = ae.AnthType
	}
	return map[string]interface{}{
		"type":  "error",
		"error": map[string]interface{}{"type": typ, "message": msg},
	}
}

// drainClose implements §4.1's backpressure-aware close: if there is
// unflushed write-buffer content, wait for the drain signal (bounded by
// drainTimeout) before returning and letting gin close the connection.
// net/http's ResponseWriter has no portable drain-signal primitive, so
// this runs a final Flush on a goroutine and waits until it returns or
// drainTimeout elapses, whichever comes first.
func drainClose(c *gin.Context, flusher http.Flusher, drainTimeout time.Duration, m *cache.Metrics) {
	if flusher == nil {
		return
	}
	m.DrainWaits.Add(1)
	done := make(chan struct{})
	go func() {
		flusher.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
	}
}

func durationMS(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// relayAnthropic implements the "backend_style: anthropic" supplemented
// feature: a thin authenticated relay instead of translation, per
// SPEC_FULL "Supplemented features" §1.
func (s *Server) relayAnthropic(c *gin.Context, body []byte, streaming bool) {
	if !streaming {
		raw, err := s.direct.Relay(c.Request.Context(), body)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", raw)
		return
	}

	c.Header("content-type", "text/event-stream")
	c.Header("cache-control", "no-cache")
	c.Header("connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	h, err := s.direct.RelayStream(c.Request.Context(), body)
	if err != nil {
		sk := &sseSink{c: c, flusher: flusher}
		emitStreamError(sk, err)
		return
	}
	defer h.Close()

	for {
		line, ok, err := h.NextLine()
		if err != nil || !ok {
			break
		}
		fmt.Fprintln(c.Writer, line)
		if flusher != nil {
			flusher.Flush()
		}
		if backend.DecodeEventName(line) == wire.EventMessageStop {
			break
		}
	}
}
