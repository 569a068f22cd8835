package toolparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaggedJSON(t *testing.T) {
	r := Default()
	buf := `Sure. <tool_call>{"name":"ls","arguments":{"path":"/"}}</tool_call>`
	m, ok := r.Scan(buf, 0)
	require.True(t, ok)
	require.Equal(t, "ls", m.Name)
	require.JSONEq(t, `{"path":"/"}`, m.ArgumentsJSON)
}

func TestNamedFunction(t *testing.T) {
	r := Default()
	buf := `<function=search>{"q":"cats"}</function>`
	m, ok := r.Scan(buf, 0)
	require.True(t, ok)
	require.Equal(t, "search", m.Name)
	require.JSONEq(t, `{"q":"cats"}`, m.ArgumentsJSON)
}

func TestBracketed(t *testing.T) {
	r := Default()
	buf := `[TOOL_CALLS] search({"q": "cats (feline)"})`
	m, ok := r.Scan(buf, 0)
	require.True(t, ok)
	require.Equal(t, "search", m.Name)
	require.JSONEq(t, `{"q": "cats (feline)"}`, m.ArgumentsJSON)
}

func TestBareJSONFence(t *testing.T) {
	r := Default()
	buf := "```json\n{\"name\":\"search\",\"arguments\":{\"q\":\"cats\"}}\n```"
	m, ok := r.Scan(buf, 0)
	require.True(t, ok)
	require.Equal(t, "search", m.Name)
	require.JSONEq(t, `{"q":"cats"}`, m.ArgumentsJSON)
}

func TestScanIncompletePendingCloseReturnsFalse(t *testing.T) {
	r := Default()
	buf := `<tool_call>{"name":"ls","arguments":{}`
	_, ok := r.Scan(buf, 0)
	require.False(t, ok)
}

func TestScanPicksEarliestPositionAcrossDialects(t *testing.T) {
	r := Default()
	buf := `<function=a>{"x":1}</function> then <tool_call>{"name":"b","arguments":{}}</tool_call>`
	m, ok := r.Scan(buf, 0)
	require.True(t, ok)
	require.Equal(t, "a", m.Name)
}
