// Package stream implements the Stream Transformer (C3): a pure state
// machine consuming wire.UpstreamChunk and emitting wire.AnthropicEvent,
// per SPEC_FULL §4.3. The block-index bookkeeping and pending-tool-call
// accumulator shape are adapted from the teacher's
// internal/protocol/stream/stream_openai_to_anthropic_beta.go streamState
// and pendingToolCall types; the eventSink indirection generalizes the
// sendXxx helper decomposition seen in the other-examples
// tingly-dev-tingly-box non-beta variant, so the same state machine can
// feed either a live SSE writer or a response-assembly accumulator.
package stream

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nyxo-labs/anthrobridge/internal/toolparse"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockTool
)

// pendingToolCall accumulates one tool_use block's streamed arguments,
// named and shaped after the teacher's own ToolCallInProgress-equivalent
// struct.
type pendingToolCall struct {
	id        string
	name      string
	argBuffer string // everything emitted so far, for dedup comparisons
}

// Transformer drives the state machine described in SPEC_FULL §4.3 for one
// request. It is not safe for concurrent use — one instance per request.
type Transformer struct {
	sink  EventSink
	toolsLen int

	state        blockKind
	nextIndex    int
	textIndex    int
	lastOpenedToolBlockIndex int
	toolIndex    map[int]int // upstream tool-call index -> anthropic block index
	pending      map[int]*pendingToolCall

	textAccum strings.Builder // buffer scanned for textual tool-call fallback
	scannedUpTo int
	parsers   *toolparse.Registry

	inputTokens  int
	outputTokens int
	outputChars  int

	messageStarted bool
	done           bool
	usedDialectFallback bool
}

// EventSink receives the AnthropicEvents a Transformer produces. Separating
// emission from the state machine lets the same transformer feed a live
// SSE writer (server.go) or a non-streaming response accumulator
// (Accumulator in accumulate.go) without duplicating the switch logic.
type EventSink interface {
	Emit(wire.AnthropicEvent)
}

// New creates a Transformer. parsers may be nil to use toolparse.Default().
func New(sink EventSink, parsers *toolparse.Registry) *Transformer {
	if parsers == nil {
		parsers = toolparse.Default()
	}
	return &Transformer{
		sink:      sink,
		toolIndex: make(map[int]int),
		pending:   make(map[int]*pendingToolCall),
		parsers:   parsers,
	}
}

// Start emits message_start, the first event of every request per §4.1.
func (t *Transformer) Start(requestID, model string) {
	t.messageStarted = true
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventMessageStart, Data: map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":    requestID,
			"type":  "message",
			"role":  "assistant",
			"model": model,
			"content": []interface{}{},
			"usage": map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
		},
	}})
}

// Feed processes one upstream chunk, emitting zero or more events.
func (t *Transformer) Feed(c wire.UpstreamChunk) {
	if t.done {
		return
	}
	switch c.Kind {
	case wire.ChunkText:
		t.feedText(c.TextDelta)
	case wire.ChunkToolCallStart:
		t.openToolBlock(c.ToolCallIndex, c.ToolCallID, c.ToolCallName)
	case wire.ChunkToolArgsDelta:
		t.feedToolArgs(c.ToolCallIndex, c.ToolArgsDelta)
	case wire.ChunkUsage:
		if c.Usage != nil {
			t.inputTokens = c.Usage.InputTokens
			if c.Usage.OutputTokens > 0 {
				t.outputTokens = c.Usage.OutputTokens
			}
		}
	case wire.ChunkFinish:
		t.finish(c.FinishReason)
	case wire.ChunkError:
		t.emitError(c.Err)
	}
}

func (t *Transformer) openTextBlock() {
	if t.state == blockTool {
		t.closeCurrentBlock()
	}
	if t.state == blockText {
		return
	}
	t.textIndex = t.nextIndex
	t.nextIndex++
	t.state = blockText
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockStart, Data: map[string]interface{}{
		"type":  "content_block_start",
		"index": t.textIndex,
		"content_block": map[string]interface{}{"type": wire.BlockText, "text": ""},
	}})
}

func (t *Transformer) feedText(delta string) {
	if delta == "" {
		return
	}
	t.textAccum.WriteString(delta)
	t.outputChars += len(delta)

	// Re-scan from the last unscanned offset for a textual tool-call dialect.
	buf := t.textAccum.String()
	if m, ok := t.parsers.Scan(buf, t.scannedUpTo); ok {
		// Emit any plain-text prefix preceding the match as a normal text
		// delta, then retroactively close text and open a synthetic tool.
		prefix := buf[t.scannedUpTo:indexOfDialectStart(buf, m, t.scannedUpTo)]
		if prefix != "" {
			t.emitTextDelta(prefix)
		}
		t.scannedUpTo = m.ConsumedEnd
		t.closeCurrentBlock()
		t.openSyntheticTool(m.Name, m.ArgumentsJSON)
		return
	}

	// No dialect match (yet). Emit only the newly unscanned-but-safe
	// portion as plain text; hold back a small tail in case a delimiter is
	// split across chunks. We conservatively emit everything except a
	// trailing partial delimiter candidate.
	safeEnd := safeEmitBoundary(buf, t.scannedUpTo)
	if safeEnd > t.scannedUpTo {
		t.emitTextDelta(buf[t.scannedUpTo:safeEnd])
		t.scannedUpTo = safeEnd
	}
}

// safeEmitBoundary avoids emitting a suffix that might be the start of a
// dialect delimiter split across chunk boundaries (e.g. "<tool_c" at the
// end of one delta, "all>" at the start of the next).
func safeEmitBoundary(buf string, from int) int {
	const maxDelimiterLen = len("[TOOL_CALLS]")
	tailStart := len(buf) - maxDelimiterLen
	if tailStart < from {
		tailStart = from
	}
	for i := tailStart; i < len(buf); i++ {
		if buf[i] == '<' || buf[i] == '[' || buf[i] == '`' {
			if i > from {
				return i
			}
			return from
		}
	}
	return len(buf)
}

func indexOfDialectStart(buf string, m toolparse.Match, from int) int {
	// Dialects report only ConsumedEnd; recover the start as the earliest
	// opening delimiter of a default dialect in buf[from:ConsumedEnd] (the
	// position Registry.Scan parsed from), defaulting to `from` if none is
	// found (keeps output monotonic).
	start := -1
	for _, open := range []string{"<tool_call>", "<function=", "[TOOL_CALLS]", "```"} {
		if i := strings.Index(buf[from:m.ConsumedEnd], open); i != -1 && (start == -1 || from+i < start) {
			start = from + i
		}
	}
	if start == -1 {
		return from
	}
	return start
}

func (t *Transformer) emitTextDelta(text string) {
	if text == "" {
		return
	}
	t.openTextBlock()
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockDelta, Data: map[string]interface{}{
		"type":  "content_block_delta",
		"index": t.textIndex,
		"delta": map[string]interface{}{"type": wire.DeltaText, "text": text},
	}})
}

func (t *Transformer) closeCurrentBlock() {
	switch t.state {
	case blockText:
		t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockStop, Data: map[string]interface{}{
			"type": "content_block_stop", "index": t.textIndex,
		}})
	case blockTool:
		t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockStop, Data: map[string]interface{}{
			"type": "content_block_stop", "index": t.lastOpenedToolBlockIndex,
		}})
	}
	t.state = blockNone
}

func (t *Transformer) openToolBlock(upstreamIndex int, id, name string) {
	if t.state != blockNone {
		t.closeCurrentBlock()
	}
	blockIdx := t.nextIndex
	t.nextIndex++
	t.toolIndex[upstreamIndex] = blockIdx
	t.lastOpenedToolBlockIndex = blockIdx
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}
	t.pending[upstreamIndex] = &pendingToolCall{id: id, name: name}
	t.state = blockTool
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockStart, Data: map[string]interface{}{
		"type":  "content_block_start",
		"index": blockIdx,
		"content_block": map[string]interface{}{"type": wire.BlockToolUse, "id": id, "name": name, "input": map[string]interface{}{}},
	}})
}

func (t *Transformer) openSyntheticTool(name, argumentsJSON string) {
	upstreamIdx := -1000 - t.nextIndex // synthetic namespace, never collides with real upstream indices
	t.openToolBlock(upstreamIdx, "", name)
	t.feedToolArgs(upstreamIdx, argumentsJSON)
	t.closeCurrentBlock()
	t.usedDialectFallback = true
}

func (t *Transformer) feedToolArgs(upstreamIndex int, delta string) {
	p, ok := t.pending[upstreamIndex]
	if !ok {
		return
	}
	if delta == "" {
		return
	}

	// Deduplicate re-sent full arguments (§4.3): some backends re-send the
	// complete argument string as a single final chunk in addition to the
	// streamed deltas. If delta, taken on its own, already reproduces
	// everything emitted so far as its prefix, only the unemitted suffix
	// is new; otherwise it's a genuine incremental append.
	var newFull string
	if strings.HasPrefix(delta, p.argBuffer) {
		newFull = delta
	} else {
		newFull = p.argBuffer + delta
	}
	toEmit := newFull[len(p.argBuffer):]
	if toEmit == "" {
		return
	}
	p.argBuffer = newFull
	blockIdx := t.toolIndex[upstreamIndex]
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventContentBlockDelta, Data: map[string]interface{}{
		"type":  "content_block_delta",
		"index": blockIdx,
		"delta": map[string]interface{}{"type": wire.DeltaInputJSON, "partial_json": toEmit},
	}})
}

func (t *Transformer) finish(reason string) {
	if !t.messageStarted {
		t.Start("msg_"+uuid.NewString(), "")
	}
	if t.state != blockNone {
		t.closeCurrentBlock()
	}
	if t.outputTokens == 0 && t.outputChars > 0 {
		t.outputTokens = (t.outputChars + 3) / 4
	}
	stopReason := mapStopReason(reason)
	if t.usedDialectFallback && stopReason == wire.StopEndTurn {
		stopReason = wire.StopToolUse
	}
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventMessageDelta, Data: map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]interface{}{"input_tokens": t.inputTokens, "output_tokens": t.outputTokens},
	}})
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventMessageStop, Data: map[string]interface{}{"type": "message_stop"}})
	t.done = true
}

func mapStopReason(openaiReason string) string {
	switch openaiReason {
	case "stop":
		return wire.StopEndTurn
	case "length":
		return wire.StopMaxTokens
	case "tool_calls":
		return wire.StopToolUse
	case "stop_sequence":
		return wire.StopSequenceHit
	default:
		return wire.StopEndTurn
	}
}

func (t *Transformer) emitError(err error) {
	msg := "stream error"
	if err != nil {
		msg = err.Error()
	}
	t.sink.Emit(wire.AnthropicEvent{Name: wire.EventError, Data: map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{"type": "api_error", "message": msg},
	}})
}

// Done reports whether message_stop has already been emitted.
func (t *Transformer) Done() bool { return t.done }

// ForceTerminate synthesizes the watchdog-fired termination path from
// SPEC_FULL §4.1: a message_delta{stop_reason:end_turn} followed by
// message_stop, emitted exactly once regardless of in-progress blocks.
func (t *Transformer) ForceTerminate() {
	if t.done {
		return
	}
	t.usedDialectFallback = false
	t.finish("stop")
}
