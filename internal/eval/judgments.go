package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Judgment is one labelled query: the paths a good retriever should return.
type Judgment struct {
	Query    string   `json:"query"`
	Roles    []string `json:"roles,omitempty"`
	Relevant []string `json:"relevant"`
}

// ReadJudgments parses one JSON Judgment per line. Blank lines and lines
// starting with # are skipped.
func ReadJudgments(r io.Reader) ([]Judgment, error) {
	var out []Judgment
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var j Judgment
		if err := json.Unmarshal([]byte(text), &j); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(j.Query) == "" {
			return nil, fmt.Errorf("line %d: query is empty", line)
		}
		out = append(out, j)
	}
	return out, scanner.Err()
}

// Report accumulates per-query metrics into means.
type Report struct {
	Queries   int
	Precision float64
	Recall    float64
	MRR       float64
	NDCG      float64
}

// Add records one query's ranked output. MRR uses the first relevant path.
func (r *Report) Add(retrieved []string, j Judgment) {
	r.Queries++
	r.Precision += PrecisionAtK(retrieved, j.Relevant)
	r.Recall += RecallAtK(retrieved, j.Relevant)

	best := 0.0
	for _, rel := range j.Relevant {
		if rr := ReciprocalRank(retrieved, rel); rr > best {
			best = rr
		}
	}
	r.MRR += best
	r.NDCG += binaryNDCG(retrieved, j.Relevant)
}

func binaryNDCG(retrieved, relevant []string) float64 {
	rel := make(map[string]struct{}, len(relevant))
	for _, r := range relevant {
		rel[r] = struct{}{}
	}
	gains := make([]float64, len(retrieved))
	for i, r := range retrieved {
		if _, ok := rel[r]; ok {
			gains[i] = 1
		}
	}
	ideal := make([]float64, min(len(relevant), len(retrieved)))
	for i := range ideal {
		ideal[i] = 1
	}
	return NDCG(gains, ideal)
}

// Mean returns the averaged report.
func (r Report) Mean() Report {
	if r.Queries == 0 {
		return r
	}
	n := float64(r.Queries)
	return Report{
		Queries:   r.Queries,
		Precision: r.Precision / n,
		Recall:    r.Recall / n,
		MRR:       r.MRR / n,
		NDCG:      r.NDCG / n,
	}
}
