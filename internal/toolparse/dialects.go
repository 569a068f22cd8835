package toolparse

import (
	"encoding/json"
	"strings"
)

// toolCallPayload is the {name, arguments} shape every dialect ultimately
// decodes its JSON body into.
type toolCallPayload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func decodePayload(jsonText string) (string, string, bool) {
	var p toolCallPayload
	if err := json.Unmarshal([]byte(jsonText), &p); err != nil {
		return "", "", false
	}
	if p.Name == "" {
		return "", "", false
	}
	args := string(p.Arguments)
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return p.Name, args, true
}

// TaggedJSON recognizes <tool_call>{"name": "...", "arguments": {...}}</tool_call>.
type TaggedJSON struct{}

func (TaggedJSON) Name() string { return "tagged_json" }

func (TaggedJSON) Detect(buf string, from int) (int, bool) {
	idx := strings.Index(buf[from:], "<tool_call>")
	if idx == -1 {
		return 0, false
	}
	return from + idx, true
}

func (TaggedJSON) Parse(buf string, start int) (Match, bool) {
	const open = "<tool_call>"
	const close = "</tool_call>"
	bodyStart := start + len(open)
	end := strings.Index(buf[bodyStart:], close)
	if end == -1 {
		return Match{}, false
	}
	body := buf[bodyStart : bodyStart+end]
	name, args, ok := decodePayload(body)
	if !ok {
		return Match{}, false
	}
	return Match{Name: name, ArgumentsJSON: args, ConsumedEnd: bodyStart + end + len(close)}, true
}

// NamedFunction recognizes <function=name>{…json…}</function>.
type NamedFunction struct{}

func (NamedFunction) Name() string { return "named_function" }

func (NamedFunction) Detect(buf string, from int) (int, bool) {
	idx := strings.Index(buf[from:], "<function=")
	if idx == -1 {
		return 0, false
	}
	return from + idx, true
}

func (NamedFunction) Parse(buf string, start int) (Match, bool) {
	const open = "<function="
	const close = "</function>"
	rest := buf[start+len(open):]
	nameEnd := strings.IndexByte(rest, '>')
	if nameEnd == -1 {
		return Match{}, false
	}
	name := rest[:nameEnd]
	bodyStart := start + len(open) + nameEnd + 1
	end := strings.Index(buf[bodyStart:], close)
	if end == -1 {
		return Match{}, false
	}
	body := strings.TrimSpace(buf[bodyStart : bodyStart+end])
	if !json.Valid([]byte(body)) {
		return Match{}, false
	}
	return Match{Name: name, ArgumentsJSON: body, ConsumedEnd: bodyStart + end + len(close)}, true
}

// Bracketed recognizes [TOOL_CALLS] name({…json…}).
type Bracketed struct{}

func (Bracketed) Name() string { return "bracketed" }

func (Bracketed) Detect(buf string, from int) (int, bool) {
	idx := strings.Index(buf[from:], "[TOOL_CALLS]")
	if idx == -1 {
		return 0, false
	}
	return from + idx, true
}

func (Bracketed) Parse(buf string, start int) (Match, bool) {
	const open = "[TOOL_CALLS]"
	nameStart := start + len(open)
	for nameStart < len(buf) && (buf[nameStart] == ' ' || buf[nameStart] == '\t') {
		nameStart++
	}
	parenIdx := strings.IndexByte(buf[nameStart:], '(')
	if parenIdx == -1 {
		return Match{}, false
	}
	parenIdx += nameStart
	name := strings.TrimSpace(buf[nameStart:parenIdx])
	if name == "" {
		return Match{}, false
	}
	depth := 0
	for i := parenIdx; i < len(buf); i++ {
		switch buf[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				args := strings.TrimSpace(buf[parenIdx+1 : i])
				if !json.Valid([]byte(args)) {
					return Match{}, false
				}
				return Match{Name: name, ArgumentsJSON: args, ConsumedEnd: i + 1}, true
			}
		}
	}
	return Match{}, false
}

// BareJSONFence recognizes a fenced code block (```...```/```json...```)
// whose top-level keys are {name, arguments}.
type BareJSONFence struct{}

func (BareJSONFence) Name() string { return "bare_json_fence" }

func (BareJSONFence) Detect(buf string, from int) (int, bool) {
	idx := strings.Index(buf[from:], "```")
	if idx == -1 {
		return 0, false
	}
	return from + idx, true
}

func (BareJSONFence) Parse(buf string, start int) (Match, bool) {
	const fence = "```"
	bodyStart := start + len(fence)
	if strings.HasPrefix(buf[bodyStart:], "json") {
		bodyStart += len("json")
	}
	if bodyStart < len(buf) && buf[bodyStart] == '\n' {
		bodyStart++
	}
	end := strings.Index(buf[bodyStart:], fence)
	if end == -1 {
		return Match{}, false
	}
	body := strings.TrimSpace(buf[bodyStart : bodyStart+end])
	name, args, ok := decodePayload(body)
	if !ok {
		return Match{}, false
	}
	return Match{Name: name, ArgumentsJSON: args, ConsumedEnd: bodyStart + end + len(fence)}, true
}
