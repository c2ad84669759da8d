package eval

import (
	"context"
	"fmt"

	"hybridrag/internal/domain"
	"hybridrag/internal/port"
)

// QueryResult is the ranked, de-duplicated path list returned for one judgment.
type QueryResult struct {
	Judgment  Judgment
	Retrieved []string
}

// Run retrieves topK records for every judgment and scores the distinct
// record paths against the relevant set. Records without a path fall back
// to their title.
func Run(ctx context.Context, r port.Retriever, judgments []Judgment, topK int) (Report, []QueryResult, error) {
	var (
		report  Report
		results = make([]QueryResult, 0, len(judgments))
	)
	for _, j := range judgments {
		hits, err := r.Retrieve(ctx, j.Query, j.Roles, topK)
		if err != nil {
			return Report{}, nil, fmt.Errorf("query %q: %w", j.Query, err)
		}
		retrieved := paths(hits)
		report.Add(retrieved, j)
		results = append(results, QueryResult{Judgment: j, Retrieved: retrieved})
	}
	return report.Mean(), results, nil
}

func paths(hits []domain.ScoredRecord) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		p := h.Record.Path
		if p == "" {
			p = h.Record.Title
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
