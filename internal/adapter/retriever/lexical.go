package retriever

import (
	"math"
	"sort"

	"hybridrag/internal/adapter/analyzer"
	"hybridrag/internal/domain"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// LexicalIndex is an in-memory Okapi BM25 index over an ordered corpus.
// Document i of the index is record i of the store. It is immutable once
// built; the coordinator swaps in a fresh one after every append.
type LexicalIndex struct {
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64

	roles  [][]string
	tf     []map[string]int
	docLen []int
	df     map[string]int
	avgDl  float64
}

// BuildLexicalIndex tokenizes every record's text and computes the corpus
// statistics BM25 needs.
func BuildLexicalIndex(records []domain.ChunkRecord, tokenizer *analyzer.Tokenizer, k1, b float64) *LexicalIndex {
	if tokenizer == nil {
		tokenizer = analyzer.NewTokenizer(false)
	}
	idx := &LexicalIndex{
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
		roles:     make([][]string, len(records)),
		tf:        make([]map[string]int, len(records)),
		docLen:    make([]int, len(records)),
		df:        make(map[string]int),
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	total := 0
	for i, tokens := range tokenizer.TokenizeAll(texts) {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.df[term]++
		}
		idx.tf[i] = tf
		idx.docLen[i] = len(tokens)
		idx.roles[i] = records[i].Roles
		total += len(tokens)
	}
	if len(records) > 0 {
		idx.avgDl = float64(total) / float64(len(records))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *LexicalIndex) Len() int {
	return len(idx.tf)
}

// Scores returns one BM25 score per document, in corpus order. Documents
// sharing no term with the query score 0. An empty corpus yields an empty slice.
func (idx *LexicalIndex) Scores(query string) []float64 {
	scores := make([]float64, len(idx.tf))
	if len(scores) == 0 {
		return scores
	}

	terms := idx.tokenizer.Tokenize(query)
	if len(terms) == 0 {
		return scores
	}

	N := float64(len(idx.tf))
	avgDl := idx.avgDl
	if avgDl == 0 {
		avgDl = 1
	}

	for _, term := range terms {
		n := idx.df[term]
		if n == 0 {
			continue
		}
		idf := math.Log((N-float64(n)+0.5)/(float64(n)+0.5) + 1)

		for i, tfMap := range idx.tf {
			f, ok := tfMap[term]
			if !ok {
				continue
			}
			tf := float64(f)
			dl := float64(idx.docLen[i])
			scores[i] += idf * (tf * (idx.k1 + 1)) / (tf + idx.k1*(1-idx.b+idx.b*dl/avgDl))
		}
	}
	return scores
}

// Search ranks every document by BM25, takes the top topK*overfetch as the
// candidate pool and returns up to topK of them visible under roles.
// Ties go to the lower index.
func (idx *LexicalIndex) Search(query string, topK, overfetch int, roles []string) []domain.ScoredRecord {
	if topK <= 0 || idx.Len() == 0 {
		return nil
	}
	if overfetch <= 0 {
		overfetch = 1
	}

	scores := idx.Scores(query)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	pool := topK * overfetch
	if pool > len(order) {
		pool = len(order)
	}

	filter := domain.NewAccessFilter(roles)
	results := make([]domain.ScoredRecord, 0, topK)
	for _, i := range order[:pool] {
		if !filter.Allows(idx.roles[i]) {
			continue
		}
		results = append(results, domain.ScoredRecord{Index: i, Score: scores[i]})
		if len(results) >= topK {
			break
		}
	}
	return results
}
