package retriever

import (
	"sort"

	"hybridrag/internal/domain"
)

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// Fuse combines ranked lists with Reciprocal Rank Fusion:
//
//	score(i) = Σ 1/(k + rank + 1)
//
// over every list containing index i, with rank 0-based. Only ranks matter;
// input scores are ignored. The result is ordered by fused score, ties
// broken by lower index, and truncated to topK (topK <= 0 keeps everything).
// The record attached to each result comes from the first list containing it.
func Fuse(lists [][]domain.ScoredRecord, k, topK int) []domain.ScoredRecord {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[int]float64)
	records := make(map[int]domain.ChunkRecord)
	for _, list := range lists {
		for rank, r := range list {
			scores[r.Index] += 1.0 / float64(k+rank+1)
			if _, ok := records[r.Index]; !ok {
				records[r.Index] = r.Record
			}
		}
	}

	fused := make([]domain.ScoredRecord, 0, len(scores))
	for idx, score := range scores {
		fused = append(fused, domain.ScoredRecord{
			Index:  idx,
			Record: records[idx],
			Score:  score,
		})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Index < fused[j].Index
	})

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}
