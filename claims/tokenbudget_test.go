package claims

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBudgeter_CountTokens_Empty(t *testing.T) {
	b := newTokenBudgeter()
	assert.Equal(t, 0, b.countTokens(""))
}

func TestTokenBudgeter_TruncateToBudget_UnderBudgetUnchanged(t *testing.T) {
	b := newTokenBudgeter()
	text := "topic: trip cancellation\nclaim: flight delayed"
	assert.Equal(t, text, b.truncateToBudget(text, b.countTokens(text)+10))
}

func TestTokenBudgeter_TruncateToBudget_OverBudgetTruncates(t *testing.T) {
	b := newTokenBudgeter()
	lines := make([]string, 500)
	for i := range lines {
		lines[i] = "claim line with some representative content about a policy benefit"
	}
	text := strings.Join(lines, "\n")

	truncated := b.truncateToBudget(text, 50)

	require.LessOrEqual(t, b.countTokens(truncated), 50+b.countTokens("\n[truncated: prompt exceeded token budget]"))
	assert.True(t, strings.HasSuffix(truncated, "[truncated: prompt exceeded token budget]"))
	assert.True(t, strings.HasPrefix(truncated, lines[0]), "truncation must preserve the leading lines, not the tail")
}

func TestProperty_TruncateToBudget_NeverExceedsInputLineCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("truncation keeps a prefix of the original lines", prop.ForAll(
		func(lineCount int, maxTokens int) bool {
			lines := make([]string, lineCount)
			for i := range lines {
				lines[i] = "a representative line of claims narrative text"
			}
			text := strings.Join(lines, "\n")

			b := newTokenBudgeter()
			result := b.truncateToBudget(text, maxTokens)

			if b.countTokens(text) <= maxTokens {
				return result == text
			}

			resultLines := strings.Split(strings.TrimSuffix(result, "\n[truncated: prompt exceeded token budget]"), "\n")
			if len(resultLines) > lineCount {
				return false
			}
			for i, l := range resultLines {
				if l != lines[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 200),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
