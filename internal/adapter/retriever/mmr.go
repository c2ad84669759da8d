package retriever

import (
	"hybridrag/internal/adapter/analyzer"
	"hybridrag/internal/domain"
)

// Diversifier implements Maximal Marginal Relevance over an already ranked
// candidate list, dropping near-duplicate passages.
type Diversifier struct {
	tokenizer    *analyzer.Tokenizer
	lambda       float64
	dedupJaccard float64
}

// NewDiversifier creates a new MMR diversifier.
func NewDiversifier(tokenizer *analyzer.Tokenizer, lambda, dedupJaccard float64) *Diversifier {
	if tokenizer == nil {
		tokenizer = analyzer.NewTokenizer(true)
	}
	return &Diversifier{
		tokenizer:    tokenizer,
		lambda:       lambda,
		dedupJaccard: dedupJaccard,
	}
}

// Diversify picks up to k candidates.
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
//
// Relevance comes from the input position, not the score, so placeholder
// scores from a disabled rerank stage still rank correctly.
func (d *Diversifier) Diversify(candidates []domain.ScoredRecord, k int) []domain.ScoredRecord {
	if len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	type candidate struct {
		rec       domain.ScoredRecord
		relevance float64
		tokens    []string
	}
	n := float64(len(candidates))
	remaining := make([]candidate, len(candidates))
	for i, c := range candidates {
		remaining[i] = candidate{
			rec:       c,
			relevance: 1 - float64(i)/n,
			tokens:    d.tokenizer.Tokenize(c.Record.Text),
		}
	}

	selected := make([]candidate, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := -1e9

		for i, c := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := jaccardSimilarity(c.tokens, sel.tokens); sim > maxSim {
					maxSim = sim
				}
			}

			if maxSim > d.dedupJaccard {
				continue
			}

			mmr := d.lambda*c.relevance - (1-d.lambda)*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			// everything left duplicates a selected passage
			break
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	out := make([]domain.ScoredRecord, len(selected))
	for i, s := range selected {
		out[i] = s.rec
	}
	return out
}

// jaccardSimilarity computes the Jaccard similarity between two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, exists := setB[t]; exists {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
