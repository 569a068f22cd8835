// Package wire defines the hand-rolled request/response shapes this proxy
// parses and emits, at both the Anthropic and OpenAI boundary. Types are
// tagged unions (an explicit Type discriminant selecting which fields are
// meaningful) rather than relying on SDK structural types, so a malformed or unexpected field
// shape fails predictably at the edge instead of silently picking a zero
// value deep in a generic union.
package wire

import "encoding/json"

// AnthropicRequest is the inbound POST /v1/messages body.
type AnthropicRequest struct {
	Model         string           `json:"model"`
	System        json.RawMessage  `json:"system,omitempty"`
	Messages      []AnthropicMsg   `json:"messages"`
	Tools         []ToolDef        `json:"tools,omitempty"`
	ToolChoice    *ToolChoice      `json:"tool_choice,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
}

// AnthropicMsg is one entry in AnthropicRequest.Messages.
type AnthropicMsg struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentBlock is a tagged union over {text, image, tool_use, tool_result}.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ImageSource describes an inbound image content block's payload.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// CacheControl marks a segment as cacheable (only "ephemeral" is defined).
type CacheControl struct {
	Type string `json:"type"`
}

// SystemBlock is one entry when `system` is an array of text blocks.
type SystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ToolDef is one entry in AnthropicRequest.Tools.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice selects how the model must use tools.
type ToolChoice struct {
	Type string `json:"type"` // "auto" | "any" | "tool"
	Name string `json:"name,omitempty"`
}

// AnthropicResponse is the non-streaming POST /v1/messages response body.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // "message"
	Role         string         `json:"role"` // "assistant"
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Usage mirrors the Anthropic usage object.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicError is the §7 error envelope shape.
type AnthropicError struct {
	Type  string              `json:"type"` // "error"
	Error AnthropicErrorDetail `json:"error"`
}

// AnthropicErrorDetail carries the taxonomy-tagged error type and message.
type AnthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
