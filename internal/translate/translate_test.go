package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	toolsA := []wire.ToolDef{{Name: "get_weather", InputSchema: json.RawMessage(`{"city":"x","unit":"c"}`)}}
	toolsB := []wire.ToolDef{{Name: "get_weather", InputSchema: json.RawMessage(`{"unit":"c","city":"x"}`)}}

	msgs := []wire.AnthropicMsg{{Role: "user", Content: json.RawMessage(`"hi"`)}}

	fpA, err := Fingerprint("sys", toolsA, msgs)
	require.NoError(t, err)
	fpB, err := Fingerprint("sys", toolsB, msgs)
	require.NoError(t, err)
	require.Equal(t, fpA, fpB, "differently ordered but semantically identical tool schemas must fingerprint identically")
}

func TestFingerprintDiffersOnContent(t *testing.T) {
	msgsA := []wire.AnthropicMsg{{Role: "user", Content: json.RawMessage(`"hi"`)}}
	msgsB := []wire.AnthropicMsg{{Role: "user", Content: json.RawMessage(`"bye"`)}}

	fpA, err := Fingerprint("sys", nil, msgsA)
	require.NoError(t, err)
	fpB, err := Fingerprint("sys", nil, msgsB)
	require.NoError(t, err)
	require.NotEqual(t, fpA, fpB)
}

func TestCanonicalizeJSONSortsNestedKeys(t *testing.T) {
	out := canonicalizeJSON(json.RawMessage(`{"b":1,"a":{"d":2,"c":3}}`))
	require.JSONEq(t, `{"a":{"c":3,"d":2},"b":1}`, string(out))
	require.Equal(t, `{"a":{"c":3,"d":2},"b":1}`, string(out))
}

func TestAdaptSchemaRejectsNonObject(t *testing.T) {
	_, err := adaptSchema(json.RawMessage(`["not", "an", "object"]`))
	require.Error(t, err)
}

func TestAdaptSchemaNormalizesOneOfAndTypeArrays(t *testing.T) {
	out, err := adaptSchema(json.RawMessage(`{"type":["string","null"],"oneOf":[{"type":"string"}],"additionalProperties":false,"$schema":"http://json-schema.org/draft-07/schema#"}`))
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	require.Equal(t, "string", m["type"])
	require.Contains(t, m, "anyOf")
	require.NotContains(t, m, "oneOf")
	require.NotContains(t, m, "additionalProperties")
	require.NotContains(t, m, "$schema")
}
