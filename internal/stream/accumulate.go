package stream

import (
	"encoding/json"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// Accumulator is an EventSink that assembles a complete
// wire.AnthropicResponse from the event sequence a Transformer emits,
// for non-streaming mode (§4.1: "the transformer still runs, but events
// are accumulated into a single response object").
type Accumulator struct {
	resp    wire.AnthropicResponse
	blocks  map[int]*wire.ContentBlock
	order   []int
	argsBuf map[int]*[]byte
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		blocks:  make(map[int]*wire.ContentBlock),
		argsBuf: make(map[int]*[]byte),
	}
}

// Emit implements EventSink.
func (a *Accumulator) Emit(ev wire.AnthropicEvent) {
	data, _ := ev.Data.(map[string]interface{})
	switch ev.Name {
	case wire.EventMessageStart:
		msg, _ := data["message"].(map[string]interface{})
		a.resp.ID, _ = msg["id"].(string)
		a.resp.Type, _ = msg["type"].(string)
		a.resp.Role, _ = msg["role"].(string)
		a.resp.Model, _ = msg["model"].(string)
	case wire.EventContentBlockStart:
		idx := intOf(data["index"])
		cb, _ := data["content_block"].(map[string]interface{})
		blk := &wire.ContentBlock{Type: strOf(cb["type"])}
		switch blk.Type {
		case wire.BlockText:
			blk.Text = strOf(cb["text"])
		case wire.BlockToolUse:
			blk.ID = strOf(cb["id"])
			blk.Name = strOf(cb["name"])
		}
		a.blocks[idx] = blk
		a.order = append(a.order, idx)
		buf := []byte{}
		a.argsBuf[idx] = &buf
	case wire.EventContentBlockDelta:
		idx := intOf(data["index"])
		delta, _ := data["delta"].(map[string]interface{})
		blk := a.blocks[idx]
		if blk == nil {
			return
		}
		switch strOf(delta["type"]) {
		case wire.DeltaText:
			blk.Text += strOf(delta["text"])
		case wire.DeltaInputJSON:
			if buf := a.argsBuf[idx]; buf != nil {
				*buf = append(*buf, strOf(delta["partial_json"])...)
			}
		}
	case wire.EventContentBlockStop:
		idx := intOf(data["index"])
		if blk := a.blocks[idx]; blk != nil && blk.Type == wire.BlockToolUse {
			if buf := a.argsBuf[idx]; buf != nil && len(*buf) > 0 {
				blk.Input = json.RawMessage(*buf)
			} else {
				blk.Input = json.RawMessage("{}")
			}
		}
	case wire.EventMessageDelta:
		delta, _ := data["delta"].(map[string]interface{})
		a.resp.StopReason = strOf(delta["stop_reason"])
		usage, _ := data["usage"].(map[string]interface{})
		a.resp.Usage.InputTokens = intOf(usage["input_tokens"])
		a.resp.Usage.OutputTokens = intOf(usage["output_tokens"])
	}
}

// Response returns the assembled response. Valid only after message_stop
// has been observed (i.e. after the driving Transformer reports Done()).
func (a *Accumulator) Response() wire.AnthropicResponse {
	out := a.resp
	out.Content = make([]wire.ContentBlock, 0, len(a.order))
	for _, idx := range a.order {
		if blk := a.blocks[idx]; blk != nil {
			out.Content = append(out.Content, *blk)
		}
	}
	return out
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func strOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
