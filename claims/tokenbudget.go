package claims

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// maxSynthesisPromptTokens bounds the P4 synthesis prompt so that a
// business question touching many topics with large sample_rows payloads
// never blows past the synthesis model's context window.
const maxSynthesisPromptTokens = 6000

// tokenBudgeter truncates prompt text to a token budget using the same
// tokenizer the synthesis model's API tokenizes with. It degrades to a
// byte-length heuristic if the encoding can't be loaded, since a missing
// tokenizer table must never abort a claims-insights request.
type tokenBudgeter struct {
	enc *tiktoken.Tiktoken
}

func newTokenBudgeter() *tokenBudgeter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenBudgeter{}
	}
	return &tokenBudgeter{enc: enc}
}

// countTokens returns the token count of s, or a conservative 4-bytes-
// per-token estimate when no encoding is loaded.
func (b *tokenBudgeter) countTokens(s string) int {
	if b.enc == nil {
		return len(s) / 4
	}
	return len(b.enc.Encode(s, nil, nil))
}

// truncateToBudget trims trailing lines from s until it fits within
// maxTokens, preserving the leading lines (the business question and
// earlier topics) over the tail. It never splits mid-line.
func (b *tokenBudgeter) truncateToBudget(s string, maxTokens int) string {
	if b.countTokens(s) <= maxTokens {
		return s
	}
	lines := strings.Split(s, "\n")
	for len(lines) > 1 && b.countTokens(strings.Join(lines, "\n")) > maxTokens {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n[truncated: prompt exceeded token budget]"
}
