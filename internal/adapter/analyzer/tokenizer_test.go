package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_LowercaseWhitespace(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("  Alpha POLICY\tsales\nHandbook ")
	assert.Equal(t, []string{"alpha", "policy", "sales", "handbook"}, tokens)
}

func TestTokenizer_KeepsPunctuation(t *testing.T) {
	tok := NewTokenizer(false)

	// whitespace split only: punctuation stays attached to the term
	tokens := tok.Tokenize("policy, policy.")
	assert.Equal(t, []string{"policy,", "policy."}, tokens)
}

func TestTokenizer_StopwordRemoval(t *testing.T) {
	tok := NewTokenizer(true)

	tokens := tok.Tokenize("The quick brown fox is on the table")
	assert.Equal(t, []string{"quick", "brown", "fox", "table"}, tokens)
}

func TestTokenizer_StopwordsKeptByDefault(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("the fox")
	assert.Equal(t, []string{"the", "fox"}, tokens)
}

func TestTokenizer_EmptyInput(t *testing.T) {
	tok := NewTokenizer(true)

	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize("   \n\t"))
}

func TestTokenizer_TokenizeAll(t *testing.T) {
	tok := NewTokenizer(false)

	out := tok.TokenizeAll([]string{"A b", "", "C"})
	assert.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b"}, out[0])
	assert.Empty(t, out[1])
	assert.Equal(t, []string{"c"}, out[2])
}
