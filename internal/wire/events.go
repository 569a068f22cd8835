package wire

// UpstreamChunk is the normalized shape the stream transformer consumes,
// regardless of which backend dialect produced it. Exactly one of the
// typed fields is meaningful per chunk, selected by Kind.
type UpstreamChunk struct {
	Kind ChunkKind

	TextDelta string

	ToolCallIndex int
	ToolCallID    string
	ToolCallName  string
	ToolArgsDelta string

	FinishReason string

	Usage *Usage

	Err error
}

// ChunkKind discriminates UpstreamChunk's payload.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkToolCallStart
	ChunkToolArgsDelta
	ChunkFinish
	ChunkUsage
	ChunkError
)

// AnthropicEvent is one emitted SSE event: an `event: Name` line plus a
// `data: ...` JSON payload.
type AnthropicEvent struct {
	Name string
	Data interface{}
}

// Event name constants, per §4.3/§6.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// Content block kinds used in content_block_start/stop payloads.
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
	BlockThinking = "thinking"
)

// Delta type discriminants used in content_block_delta payloads.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
)

// Anthropic stop_reason values.
const (
	StopEndTurn      = "end_turn"
	StopToolUse      = "tool_use"
	StopMaxTokens    = "max_tokens"
	StopSequenceHit  = "stop_sequence"
)
