package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

type recordingSink struct {
	events []wire.AnthropicEvent
}

func (r *recordingSink) Emit(ev wire.AnthropicEvent) { r.events = append(r.events, ev) }

func (r *recordingSink) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func TestSimpleTextStreaming(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: "He"})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: "llo"})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "stop"})

	require.Equal(t, []string{
		wire.EventMessageStart,
		wire.EventContentBlockStart,
		wire.EventContentBlockDelta,
		wire.EventContentBlockDelta,
		wire.EventContentBlockStop,
		wire.EventMessageDelta,
		wire.EventMessageStop,
	}, sink.names())
	require.True(t, tr.Done())

	md := sink.events[5].Data.(map[string]interface{})
	d := md["delta"].(map[string]interface{})
	require.Equal(t, wire.StopEndTurn, d["stop_reason"])
}

func TestNativeToolCall(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolCallStart, ToolCallIndex: 0, ToolCallID: "t1", ToolCallName: "search"})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolArgsDelta, ToolCallIndex: 0, ToolArgsDelta: `{"q":`})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolArgsDelta, ToolCallIndex: 0, ToolArgsDelta: `"cats"}`})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "tool_calls"})

	require.Equal(t, []string{
		wire.EventMessageStart,
		wire.EventContentBlockStart,
		wire.EventContentBlockDelta,
		wire.EventContentBlockDelta,
		wire.EventContentBlockStop,
		wire.EventMessageDelta,
		wire.EventMessageStop,
	}, sink.names())

	d1 := sink.events[2].Data.(map[string]interface{})["delta"].(map[string]interface{})
	d2 := sink.events[3].Data.(map[string]interface{})["delta"].(map[string]interface{})
	require.Equal(t, `{"q":`+`"cats"}`, d1["partial_json"].(string)+d2["partial_json"].(string))

	md := sink.events[5].Data.(map[string]interface{})["delta"].(map[string]interface{})
	require.Equal(t, wire.StopToolUse, md["stop_reason"])
}

func TestToolArgsDedupOnResendSuperset(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolCallStart, ToolCallIndex: 0, ToolCallID: "t1", ToolCallName: "search"})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolArgsDelta, ToolCallIndex: 0, ToolArgsDelta: `{"q":"cats"}`})
	// backend re-sends the whole argument string again as a final chunk.
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkToolArgsDelta, ToolCallIndex: 0, ToolArgsDelta: `{"q":"cats"}`})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "tool_calls"})

	deltaCount := 0
	for _, ev := range sink.events {
		if ev.Name == wire.EventContentBlockDelta {
			deltaCount++
		}
	}
	require.Equal(t, 1, deltaCount, "resent full arguments must not be re-emitted")
}

func TestDialectFallback(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: `Sure. <tool_call>{"name":"ls","arguments":{"path":"/"}}</tool_call>`})
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "stop"})

	names := sink.names()
	require.Equal(t, wire.EventMessageStart, names[0])
	require.Contains(t, names, wire.EventContentBlockStart)
	require.Contains(t, names, wire.EventContentBlockStop)
	require.Equal(t, wire.EventMessageDelta, names[len(names)-2])
	require.Equal(t, wire.EventMessageStop, names[len(names)-1])

	md := sink.events[len(sink.events)-2].Data.(map[string]interface{})["delta"].(map[string]interface{})
	require.Equal(t, wire.StopToolUse, md["stop_reason"])

	acc := NewAccumulator()
	tr2 := New(acc, nil)
	tr2.Start("msg_2", "m")
	tr2.Feed(wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: `Sure. <tool_call>{"name":"ls","arguments":{"path":"/"}}</tool_call>`})
	tr2.Feed(wire.UpstreamChunk{Kind: wire.ChunkFinish, FinishReason: "stop"})
	resp := acc.Response()
	require.Len(t, resp.Content, 2)
	require.Equal(t, "text", resp.Content[0].Type)
	require.Equal(t, "Sure. ", resp.Content[0].Text)
	require.Equal(t, "tool_use", resp.Content[1].Type)
	require.Equal(t, "ls", resp.Content[1].Name)
	require.JSONEq(t, `{"path":"/"}`, string(resp.Content[1].Input))
}

func TestChunkErrorEmitsErrorEvent(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkError, Err: errors.New("boom")})
	require.Equal(t, wire.EventError, sink.events[len(sink.events)-1].Name)
}

func TestForceTerminateEmitsExactlyOnce(t *testing.T) {
	sink := &recordingSink{}
	tr := New(sink, nil)
	tr.Start("msg_1", "m")
	tr.Feed(wire.UpstreamChunk{Kind: wire.ChunkText, TextDelta: "hi"})
	tr.ForceTerminate()
	tr.ForceTerminate() // idempotent: watchdog races natural completion
	stops := 0
	for _, ev := range sink.events {
		if ev.Name == wire.EventMessageStop {
			stops++
		}
	}
	require.Equal(t, 1, stops)
}
