package translate

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// EstimateTokens returns a best-effort token count for the translated
// request, preferring a real tokenizer (as the teacher's
// countBetaTokensWithTiktoken does for its OpenAI-style fallback) and
// falling back to the spec's ~4 chars/token heuristic when a codec can't
// be constructed for the requested encoding.
func EstimateTokens(systemText string, messages []wire.OpenAIMsg) int {
	var sb []byte
	sb = append(sb, systemText...)
	for _, m := range messages {
		sb = append(sb, m.Content...)
		for _, tc := range m.ToolCalls {
			sb = append(sb, tc.Function.Arguments...)
		}
	}

	if codec, err := sharedCodec(); err == nil {
		if toks, _, err := codec.Encode(string(sb)); err == nil {
			return len(toks)
		}
	}
	return heuristicTokens(len(sb))
}

// heuristicTokens is the spec's explicitly named fallback: ~4 chars/token.
func heuristicTokens(byteLen int) int {
	if byteLen == 0 {
		return 0
	}
	return (byteLen + 3) / 4
}

var (
	codecOnce sync.Once
	codecInst tokenizer.Codec
	codecErr  error
)

func sharedCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codecInst, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codecInst, codecErr
}
