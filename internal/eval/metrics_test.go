package eval

import (
	"strings"
	"testing"
)

func TestPrecisionAtK(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		wantP     float64
	}{
		{"perfect", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"partial", []string{"a", "b", "x"}, []string{"a", "b", "c"}, 0.666},
		{"none", []string{"x", "y", "z"}, []string{"a", "b", "c"}, 0.0},
		{"empty_retrieved", []string{}, []string{"a", "b"}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PrecisionAtK(tc.retrieved, tc.relevant)
			if diff := p - tc.wantP; diff > 0.01 || diff < -0.01 {
				t.Errorf("precision = %.3f, want %.3f", p, tc.wantP)
			}
		})
	}
}

func TestRecallAtK(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  []string
		wantR     float64
	}{
		{"perfect", []string{"a", "b", "c"}, []string{"a", "b", "c"}, 1.0},
		{"partial", []string{"a", "b", "x"}, []string{"a", "b", "c"}, 0.666},
		{"none", []string{"x", "y", "z"}, []string{"a", "b", "c"}, 0.0},
		{"empty_relevant", []string{"a", "b"}, []string{}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := RecallAtK(tc.retrieved, tc.relevant)
			if diff := r - tc.wantR; diff > 0.01 || diff < -0.01 {
				t.Errorf("recall = %.3f, want %.3f", r, tc.wantR)
			}
		})
	}
}

func TestMRR(t *testing.T) {
	cases := []struct {
		name      string
		retrieved []string
		relevant  string
		wantMRR   float64
	}{
		{"first", []string{"a", "b", "c"}, "a", 1.0},
		{"second", []string{"x", "a", "c"}, "a", 0.5},
		{"third", []string{"x", "y", "a"}, "a", 0.333},
		{"missing", []string{"x", "y", "z"}, "a", 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mrr := ReciprocalRank(tc.retrieved, tc.relevant)
			if diff := mrr - tc.wantMRR; diff > 0.01 || diff < -0.01 {
				t.Errorf("MRR = %.3f, want %.3f", mrr, tc.wantMRR)
			}
		})
	}
}

func TestNDCG(t *testing.T) {
	cases := []struct {
		name     string
		scores   []float64
		ideal    []float64
		wantNDCG float64
	}{
		{"perfect", []float64{3, 2, 1}, []float64{3, 2, 1}, 1.0},
		{"reversed", []float64{1, 2, 3}, []float64{3, 2, 1}, 0.790},
		{"zeros", []float64{0, 0, 0}, []float64{3, 2, 1}, 0.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ndcg := NDCG(tc.scores, tc.ideal)
			if diff := ndcg - tc.wantNDCG; diff > 0.01 || diff < -0.01 {
				t.Errorf("NDCG = %.3f, want %.3f", ndcg, tc.wantNDCG)
			}
		})
	}
}

func TestReadJudgments(t *testing.T) {
	input := `# labelled queries
{"query": "vacation policy", "relevant": ["hr/leave.md"]}

{"query": "deploy steps", "roles": ["eng"], "relevant": ["eng/deploy.md", "eng/ci.md"]}
`
	judgments, err := ReadJudgments(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(judgments) != 2 {
		t.Fatalf("expected 2 judgments, got %d", len(judgments))
	}
	if judgments[1].Roles[0] != "eng" || len(judgments[1].Relevant) != 2 {
		t.Errorf("unexpected judgment: %+v", judgments[1])
	}

	if _, err := ReadJudgments(strings.NewReader(`{"query": ""}`)); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestReportMean(t *testing.T) {
	var r Report
	r.Add([]string{"a", "x"}, Judgment{Query: "q1", Relevant: []string{"a"}})
	r.Add([]string{"x", "b"}, Judgment{Query: "q2", Relevant: []string{"b"}})

	m := r.Mean()
	if m.Queries != 2 {
		t.Fatalf("expected 2 queries, got %d", m.Queries)
	}
	if diff := m.MRR - 0.75; diff > 0.001 || diff < -0.001 {
		t.Errorf("MRR = %.3f, want 0.750", m.MRR)
	}
	if diff := m.Precision - 0.5; diff > 0.001 || diff < -0.001 {
		t.Errorf("precision = %.3f, want 0.500", m.Precision)
	}
	if m.Recall != 1 {
		t.Errorf("recall = %.3f, want 1", m.Recall)
	}
}
