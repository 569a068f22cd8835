package translate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// ToAnthropicResponse assembles a non-streaming wire.AnthropicResponse from
// a complete wire.OpenAIResponse, mirroring the block-building the stream
// transformer does incrementally. Grounded on the teacher's
// pkg/adaptor.ConvertOpenAIToAnthropic (map round-trip technique), rewritten
// here against our own hand-rolled wire types instead of SDK unions.
func ToAnthropicResponse(resp *wire.OpenAIResponse, model string) wire.AnthropicResponse {
	out := wire.AnthropicResponse{
		ID:    "msg_" + uuid.NewString(),
		Type:  "message",
		Role:  "assistant",
		Model: model,
		Usage: wire.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		out.StopReason = wire.StopEndTurn
		return out
	}

	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = append(out.Content, wire.ContentBlock{Type: "text", Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, wire.ContentBlock{
			Type:  "tool_use",
			ID:    toolCallID(tc),
			Name:  tc.Function.Name,
			Input: json.RawMessage(orEmptyObject(tc.Function.Arguments)),
		})
	}
	out.StopReason = MapFinishReason(choice.FinishReason)
	return out
}

func toolCallID(tc wire.OpenAIToolCall) string {
	if tc.ID != "" {
		return tc.ID
	}
	return "toolu_" + uuid.NewString()
}

func orEmptyObject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}

// MapFinishReason maps an OpenAI finish_reason to an Anthropic stop_reason,
// per §4.3.
func MapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return wire.StopEndTurn
	case "length":
		return wire.StopMaxTokens
	case "tool_calls":
		return wire.StopToolUse
	case "content_filter":
		return wire.StopEndTurn
	default:
		return wire.StopEndTurn
	}
}

// FromAnthropicText is the minimal inverse reader SPEC_FULL §8's
// "translator round-trip" property exercises: given an OpenAIRequest built
// purely from a text-only Anthropic message sequence, recover the
// (role, text) pairs that were encoded by Translate. Tool calls, images,
// and system prompts are outside this property's scope (it is defined only
// over "a message with only text content").
func FromAnthropicText(req wire.OpenAIRequest) []struct{ Role, Text string } {
	out := make([]struct{ Role, Text string }, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		out = append(out, struct{ Role, Text string }{Role: m.Role, Text: m.Content})
	}
	return out
}
