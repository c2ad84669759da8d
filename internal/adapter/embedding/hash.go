package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"hybridrag/internal/adapter/analyzer"
)

// HashEmbedder maps text to a bag-of-words vector by feature hashing. It is
// deterministic and offline. Similarity reflects shared vocabulary only.
// Text with no countable terms maps to a fixed unit vector.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dimension)
		for _, tok := range e.tokenizer.Tokenize(text) {
			h := fnv.New64a()
			h.Write([]byte(tok))
			sum := h.Sum64()
			sign := float32(1)
			if sum&1 == 1 {
				sign = -1
			}
			v[(sum>>1)%uint64(e.dimension)] += sign
		}
		if isZero(v) {
			v[0] = 1
		}
		l2normalize(v)
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
