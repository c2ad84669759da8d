package eval

import (
	"context"
	"errors"
	"testing"

	"hybridrag/internal/domain"
)

type fixedRetriever map[string][]domain.ScoredRecord

func (f fixedRetriever) Retrieve(_ context.Context, query string, _ []string, _ int) ([]domain.ScoredRecord, error) {
	hits, ok := f[query]
	if !ok {
		return nil, errors.New("unknown query")
	}
	return hits, nil
}

func rec(path string) domain.ScoredRecord {
	return domain.ScoredRecord{Record: domain.ChunkRecord{Path: path, Text: "x"}}
}

func TestRun(t *testing.T) {
	r := fixedRetriever{
		"leave": {rec("hr/leave.md"), rec("hr/leave.md"), rec("eng/ci.md")},
		"ci":    {rec("hr/leave.md"), rec("eng/ci.md")},
	}
	judgments := []Judgment{
		{Query: "leave", Relevant: []string{"hr/leave.md"}},
		{Query: "ci", Relevant: []string{"eng/ci.md"}},
	}

	report, results, err := Run(context.Background(), r, judgments, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0].Retrieved) != 2 {
		t.Errorf("chunks of one file should collapse, got %v", results[0].Retrieved)
	}
	if diff := report.MRR - 0.75; diff > 0.001 || diff < -0.001 {
		t.Errorf("MRR = %.3f, want 0.750", report.MRR)
	}
	if report.NDCG <= 0 || report.NDCG > 1 {
		t.Errorf("NDCG = %.3f, want (0,1]", report.NDCG)
	}
}

func TestRun_PropagatesErrors(t *testing.T) {
	_, _, err := Run(context.Background(), fixedRetriever{}, []Judgment{{Query: "missing"}}, 5)
	if err == nil {
		t.Fatal("expected error")
	}
}
