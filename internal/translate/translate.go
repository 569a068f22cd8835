// Package translate implements the Request Translator (C2): converting an
// inbound wire.AnthropicRequest into a wire.OpenAIRequest, computing its
// cache fingerprint, and estimating cacheable token counts. Message and
// tool mapping rules are adapted from the teacher's
// pkg/adaptor.ConvertAnthropicToOpenAI / ConvertOpenAIToolsToAnthropic.
package translate

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/nyxo-labs/anthrobridge/internal/apierr"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// ExtractedCacheInfo reports the cache-relevant segments the translator
// found while converting a request, per SPEC_FULL §4.2.
type ExtractedCacheInfo struct {
	HasEphemeralMarker bool
	SystemBytes        int
	ToolCount          int
	EstimatedTokens    int
}

// Result bundles the translator's three outputs for one request.
type Result struct {
	OpenAIReq  wire.OpenAIRequest
	Fingerprint [32]byte
	CacheInfo  ExtractedCacheInfo
}

// Translate converts req into Result, or returns an *apierr.Error for the
// failure modes named in §4.2 (invalid tool schema, dangling tool_result).
func Translate(req *wire.AnthropicRequest, imagesSupported bool) (*Result, error) {
	systemText, systemBlocks, hasEphemeral := extractSystem(req.System)

	openaiMsgs := make([]wire.OpenAIMsg, 0, len(req.Messages)+1)
	if systemText != "" {
		openaiMsgs = append(openaiMsgs, wire.OpenAIMsg{Role: "system", Content: systemText})
	}

	knownToolUseIDs := map[string]bool{}
	for _, m := range req.Messages {
		if m.Role != "assistant" {
			continue
		}
		blocks, err := decodeContent(m.Content)
		if err != nil {
			return nil, apierr.InvalidRequest("malformed_content", "assistant message content is malformed: "+err.Error())
		}
		for _, b := range blocks {
			if b.Type == "tool_use" {
				knownToolUseIDs[b.ID] = true
			}
		}
	}

	for _, m := range req.Messages {
		blocks, err := decodeContent(m.Content)
		if err != nil {
			return nil, apierr.InvalidRequest("malformed_content", "message content is malformed: "+err.Error())
		}

		if m.Role == "assistant" {
			msg, hasToolUse := assistantBlocksToOpenAI(blocks)
			openaiMsgs = append(openaiMsgs, msg)
			_ = hasToolUse
			continue
		}

		// user role: may contain tool_result blocks, text blocks, or both.
		var textParts []string
		var toolMsgs []wire.OpenAIMsg
		for _, b := range blocks {
			switch b.Type {
			case "tool_result":
				if !knownToolUseIDs[b.ToolUseID] {
					return nil, apierr.InvalidRequest("dangling_tool_result", fmt.Sprintf("tool_result references unknown tool_use id %q", b.ToolUseID))
				}
				toolMsgs = append(toolMsgs, wire.OpenAIMsg{
					Role:       "tool",
					Content:    toolResultText(b),
					ToolCallID: b.ToolUseID,
				})
			case "text":
				textParts = append(textParts, b.Text)
			case "image":
				if imagesSupported {
					textParts = append(textParts, "[image]")
				} else {
					textParts = append(textParts, "[image]")
				}
			}
		}
		if len(textParts) > 0 {
			openaiMsgs = append(openaiMsgs, wire.OpenAIMsg{Role: "user", Content: strings.Join(textParts, "\n")})
		}
		openaiMsgs = append(openaiMsgs, toolMsgs...)
	}

	openaiTools := make([]wire.OpenAITool, 0, len(req.Tools))
	for _, t := range req.Tools {
		adapted, err := adaptSchema(t.InputSchema)
		if err != nil {
			return nil, apierr.InvalidRequest("tool_schema", fmt.Sprintf("tool %q has an invalid input_schema: %v", t.Name, err))
		}
		openaiTools = append(openaiTools, wire.OpenAITool{
			Type: "function",
			Function: wire.OpenAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  adapted,
			},
		})
	}

	var toolChoice json.RawMessage
	if req.ToolChoice != nil {
		toolChoice = mapToolChoice(req.ToolChoice)
	}

	openaiReq := wire.OpenAIRequest{
		Model:               req.Model,
		Messages:            openaiMsgs,
		Tools:               openaiTools,
		ToolChoice:          toolChoice,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
		TopP:                req.TopP,
		Stop:                req.StopSequences,
		Stream:              req.Stream,
	}

	fp, err := Fingerprint(systemText, req.Tools, req.Messages)
	if err != nil {
		return nil, apierr.Internal("failed to compute request fingerprint", err)
	}

	info := ExtractedCacheInfo{
		HasEphemeralMarker: hasEphemeral,
		SystemBytes:        len(systemText),
		ToolCount:          len(req.Tools),
		EstimatedTokens:    EstimateTokens(systemText, openaiMsgs),
	}
	_ = systemBlocks

	return &Result{OpenAIReq: openaiReq, Fingerprint: fp, CacheInfo: info}, nil
}

func decodeContent(raw json.RawMessage) ([]wire.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return []wire.ContentBlock{{Type: "text", Text: s}}, nil
	}
	var blocks []wire.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func assistantBlocksToOpenAI(blocks []wire.ContentBlock) (wire.OpenAIMsg, bool) {
	msg := wire.OpenAIMsg{Role: "assistant"}
	var textParts []string
	var calls []wire.OpenAIToolCall
	idx := 0
	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "tool_use":
			args := string(b.Input)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, wire.OpenAIToolCall{
				Index: idx,
				ID:    b.ID,
				Type:  "function",
				Function: wire.OpenAIToolCallFunction{
					Name:      b.Name,
					Arguments: args,
				},
			})
			idx++
		}
	}
	msg.Content = strings.Join(textParts, "\n")
	msg.ToolCalls = calls
	return msg, len(calls) > 0
}

func toolResultText(b wire.ContentBlock) string {
	if len(b.Content) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(b.Content))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if json.Unmarshal(b.Content, &s) == nil {
			return s
		}
	}
	if strings.HasPrefix(trimmed, "[") {
		var blocks []wire.ContentBlock
		if json.Unmarshal(b.Content, &blocks) == nil {
			var parts []string
			for _, sub := range blocks {
				if sub.Type == "text" {
					parts = append(parts, sub.Text)
				} else if sub.Type == "image" {
					parts = append(parts, "[image]")
				}
			}
			return strings.Join(parts, "\n")
		}
	}
	return trimmed
}

func extractSystem(raw json.RawMessage) (text string, blocks []wire.SystemBlock, hasEphemeral bool) {
	if len(raw) == 0 {
		return "", nil, false
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		_ = json.Unmarshal(raw, &s)
		return s, nil, false
	}
	var bs []wire.SystemBlock
	if err := json.Unmarshal(raw, &bs); err != nil {
		return "", nil, false
	}
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		parts = append(parts, b.Text)
		if b.CacheControl != nil && b.CacheControl.Type == "ephemeral" {
			hasEphemeral = true
		}
	}
	return strings.Join(parts, "\n"), bs, hasEphemeral
}

func mapToolChoice(tc *wire.ToolChoice) json.RawMessage {
	switch tc.Type {
	case "tool":
		out, _ := json.Marshal(map[string]interface{}{
			"type":     "function",
			"function": map[string]string{"name": tc.Name},
		})
		return out
	case "any":
		out, _ := json.Marshal("required")
		return out
	default:
		out, _ := json.Marshal("auto")
		return out
	}
}

// adaptSchema removes keywords OpenAI-compatible backends commonly reject
// and normalizes a few shapes, per SPEC_FULL §4.2's "schema adapter".
func adaptSchema(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("input_schema must be a JSON object: %w", err)
	}
	delete(m, "$schema")

	normalizeTypeArrays(m)
	if one, ok := m["oneOf"]; ok {
		m["anyOf"] = one
		delete(m, "oneOf")
	}
	if ap, ok := m["additionalProperties"]; ok {
		if b, isBool := ap.(bool); isBool && !b {
			delete(m, "additionalProperties")
		}
	}

	return json.Marshal(m)
}

func normalizeTypeArrays(m map[string]interface{}) {
	if t, ok := m["type"]; ok {
		if arr, isArr := t.([]interface{}); isArr && len(arr) > 0 {
			m["type"] = arr[0]
		}
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		for _, v := range props {
			if sub, isMap := v.(map[string]interface{}); isMap {
				normalizeTypeArrays(sub)
			}
		}
	}
}

// Fingerprint computes the deterministic SHA-256 digest over the
// cache-relevant inputs, per §4.2: cache_control markers and volatile
// fields are excluded from the hash input by construction (they're never
// read here).
func Fingerprint(systemText string, tools []wire.ToolDef, messages []wire.AnthropicMsg) ([32]byte, error) {
	sortedTools := make([]wire.ToolDef, len(tools))
	copy(sortedTools, tools)
	sort.Slice(sortedTools, func(i, j int) bool { return sortedTools[i].Name < sortedTools[j].Name })

	type canonicalMsg struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	canonMsgs := make([]canonicalMsg, 0, len(messages))
	for _, m := range messages {
		blocks, err := decodeContent(m.Content)
		if err != nil {
			return [32]byte{}, err
		}
		var sb strings.Builder
		for _, b := range blocks {
			switch b.Type {
			case "text":
				sb.WriteString(b.Text)
			case "tool_use":
				sb.WriteString(b.Name)
				sb.Write(canonicalizeJSON(b.Input))
			case "tool_result":
				sb.WriteString(b.ToolUseID)
				sb.WriteString(toolResultText(b))
			case "image":
				sb.WriteString("[image]")
			}
		}
		canonMsgs = append(canonMsgs, canonicalMsg{Role: m.Role, Text: sb.String()})
	}

	type canonicalTool struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Schema      string `json:"schema"`
	}
	canonTools := make([]canonicalTool, 0, len(sortedTools))
	for _, t := range sortedTools {
		canonTools = append(canonTools, canonicalTool{
			Name:        t.Name,
			Description: t.Description,
			Schema:      string(canonicalizeJSON(t.InputSchema)),
		})
	}

	payload := struct {
		System   string          `json:"system"`
		Tools    []canonicalTool `json:"tools"`
		Messages []canonicalMsg  `json:"messages"`
	}{System: systemText, Tools: canonTools, Messages: canonMsgs}

	b, err := json.Marshal(payload)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// canonicalizeJSON re-serializes arbitrary JSON with sorted object keys so
// that semantically identical documents with differently ordered fields
// fingerprint identically. Parsed with fastjson rather than into
// interface{} + encoding/json.Marshal: fastjson scans straight into a
// Value tree without the map[string]interface{} allocation round trip,
// and MarshalTo appends each node's bytes directly into the output buffer.
func canonicalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	writeCanonicalValue(&buf, v)
	return buf.Bytes()
}

// writeCanonicalValue appends v's canonical form to buf: object keys
// sorted, arrays and scalars emitted in their original order/form.
func writeCanonicalValue(buf *bytes.Buffer, v *fastjson.Value) {
	switch v.Type() {
	case fastjson.TypeObject:
		obj := v.GetObject()
		keys := make([]string, 0, obj.Len())
		obj.Visit(func(k []byte, _ *fastjson.Value) {
			keys = append(keys, string(k))
		})
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			writeCanonicalValue(buf, obj.Get(k))
		}
		buf.WriteByte('}')
	case fastjson.TypeArray:
		arr := v.GetArray()
		buf.WriteByte('[')
		for i, item := range arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalValue(buf, item)
		}
		buf.WriteByte(']')
	default:
		buf.Write(v.MarshalTo(nil))
	}
}
