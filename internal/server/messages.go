package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nyxo-labs/anthrobridge/internal/apierr"
	"github.com/nyxo-labs/anthrobridge/internal/cache"
	"github.com/nyxo-labs/anthrobridge/internal/translate"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// handleMessages implements POST /v1/messages (§4.1, §6): the single
// principal endpoint. The request body is parsed once; a structural
// rejection happens immediately if required fields are missing.
func (s *Server) handleMessages(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, apierr.InvalidRequest("", "failed to read request body: "+err.Error()))
		return
	}

	var req wire.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeAPIError(c, apierr.InvalidRequest("", "request body is not valid JSON: "+err.Error()))
		return
	}
	if req.Model == "" {
		writeAPIError(c, apierr.InvalidRequest("", "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		writeAPIError(c, apierr.InvalidRequest("", "messages must be a non-empty array"))
		return
	}

	requestID := "msg_" + uuid.NewString()
	c.Set("request_id", requestID)

	if s.cfg.BackendStyle == "anthropic" && s.direct != nil {
		s.relayAnthropic(c, body, req.Stream)
		return
	}

	result, err := translate.Translate(&req, false)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	if req.Stream {
		s.streamMessages(c, requestID, req.Model, result.OpenAIReq)
		return
	}
	s.completeMessages(c, requestID, req.Model, result)
}

// completeMessages handles non-streaming requests. Per §4.1, "the
// transformer still runs, but events are accumulated into a single
// response object" — so even here, the backend is always driven through
// the streaming Chat Completions endpoint and fed into the same Stream
// Transformer (C3) used for live SSE, just with an Accumulator sink
// instead of an SSE writer. This keeps tool-call dialect handling and
// argument dedup identical between the two modes.
func (s *Server) completeMessages(c *gin.Context, requestID, respModel string, result *translate.Result) {
	eligible := s.cacheEligible(result)

	compute := func() ([]byte, error) {
		resp, err := s.runToCompletion(c.Request.Context(), requestID, respModel, result.OpenAIReq)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}

	var raw []byte
	var err error
	if eligible && s.cache != nil {
		raw, err, _ = s.cache.Compute(result.Fingerprint, func() ([]byte, error) { return compute() })
	} else {
		raw, err = compute()
	}
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) cacheEligible(result *translate.Result) bool {
	if s.cache == nil || s.elig == nil {
		return false
	}
	return s.elig.Eligible(cache.RequestContext{
		ToolCount:          result.CacheInfo.ToolCount,
		SystemBytes:        result.CacheInfo.SystemBytes,
		HasEphemeralMarker: result.CacheInfo.HasEphemeralMarker,
		Streaming:          false,
	})
}

func writeAPIError(c *gin.Context, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		ae = apierr.Internal("unexpected error", err)
	}
	c.JSON(ae.HTTPStatus, ae.Envelope())
}
