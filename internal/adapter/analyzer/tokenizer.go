package analyzer

import (
	"strings"
)

// Tokenizer lowercases text and splits it on whitespace. Query and corpus
// text must go through the same Tokenizer so their terms line up.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer. With dropStopwords set, common
// English function words are removed after splitting.
func NewTokenizer(dropStopwords bool) *Tokenizer {
	t := &Tokenizer{}
	if dropStopwords {
		t.stopwords = defaultStopwords()
	}
	return t
}

// Tokenize splits text into lowercase whitespace-delimited terms.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	if t.stopwords == nil {
		return words
	}

	tokens := words[:0]
	for _, w := range words {
		if _, isStop := t.stopwords[w]; isStop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TokenizeAll tokenizes every text, preserving order.
func (t *Tokenizer) TokenizeAll(texts []string) [][]string {
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = t.Tokenize(text)
	}
	return out
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"do", "does", "did", "been", "being", "would", "could",
		"should", "may", "might", "must", "which", "who", "what",
		"when", "where", "why", "how",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
