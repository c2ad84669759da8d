package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/adapter/analyzer"
	"hybridrag/internal/adapter/retriever"
	"hybridrag/internal/domain"
)

type stubRetriever struct {
	results []domain.ScoredRecord
	err     error
	gotK    int
	gotRole []string
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, roles []string, topK int) ([]domain.ScoredRecord, error) {
	s.gotK = topK
	s.gotRole = roles
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

type stubGenerator struct {
	calls   int
	context string
	err     error
}

func (g *stubGenerator) Generate(_ context.Context, _ string, contextText string) (string, error) {
	g.calls++
	g.context = contextText
	if g.err != nil {
		return "", g.err
	}
	return "generated", nil
}

func (g *stubGenerator) ModelName() string { return "stub" }

type reverseReranker struct{}

func (reverseReranker) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	out := make([]float64, len(passages))
	for i := range passages {
		out[i] = float64(i)
	}
	return out, nil
}

func (reverseReranker) ModelName() string { return "reverse" }

type brokenReranker struct{}

func (brokenReranker) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("rerank backend down")
}

func (brokenReranker) ModelName() string { return "broken" }

func hit(i int, title, text string) domain.ScoredRecord {
	return domain.ScoredRecord{
		Index:  i,
		Record: domain.ChunkRecord{Title: title, Text: text, Path: title + ".md", Roles: []string{"all"}},
		Score:  1 / float64(61+i),
	}
}

func TestAnswer_GeneratesFromPackedContext(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{
		hit(0, "a", "first"),
		hit(1, "b", "second"),
		hit(2, "c", "third"),
	}}
	gen := &stubGenerator{}
	uc := NewAnswerUseCase(r, nil, gen, AnswerOptions{TopK: 2, CandidateMultiplier: 3})

	ans, err := uc.Answer(context.Background(), "q", []string{"sales"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 6, r.gotK)
	assert.Equal(t, []string{"sales"}, r.gotRole)
	assert.Equal(t, "generated", ans.Answer)
	assert.Equal(t, "[a] first\n\n[b] second", gen.context)
	assert.Equal(t, gen.context, ans.Context)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "a", ans.Sources[0].Title)
	assert.Equal(t, "a.md", ans.Sources[0].Path)
}

func TestAnswer_NoHitsSkipsGenerator(t *testing.T) {
	gen := &stubGenerator{}
	uc := NewAnswerUseCase(&stubRetriever{}, nil, gen, AnswerOptions{})

	ans, err := uc.Answer(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 0, gen.calls)
}

func TestAnswer_NilGeneratorReturnsContext(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{hit(0, "a", "first")}}
	uc := NewAnswerUseCase(r, nil, nil, AnswerOptions{})

	ans, err := uc.Answer(context.Background(), "q", nil, 1)
	require.NoError(t, err)
	assert.Empty(t, ans.Answer)
	assert.Equal(t, "[a] first", ans.Context)
}

func TestAnswer_RetrieveErrorPropagates(t *testing.T) {
	want := domain.Validation("retrieve", domain.ErrEmptyQuery)
	uc := NewAnswerUseCase(&stubRetriever{err: want}, nil, &stubGenerator{}, AnswerOptions{})

	_, err := uc.Answer(context.Background(), " ", nil, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestAnswer_GeneratorError(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{hit(0, "a", "first")}}
	uc := NewAnswerUseCase(r, nil, &stubGenerator{err: errors.New("quota")}, AnswerOptions{})

	_, err := uc.Answer(context.Background(), "q", nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestAnswer_RerankReordersBeforeCut(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{
		hit(0, "a", "first"),
		hit(1, "b", "second"),
		hit(2, "c", "third"),
	}}
	stage := retriever.NewRerankStage(reverseReranker{}, nil)
	uc := NewAnswerUseCase(r, stage, nil, AnswerOptions{CandidateMultiplier: 3})

	ans, err := uc.Answer(context.Background(), "q", nil, 1)
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "c", ans.Sources[0].Title)
	assert.Equal(t, 2.0, ans.Sources[0].Score)
}

func TestAnswer_RerankFailureKeepsFusedOrder(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{
		hit(0, "a", "first"),
		hit(1, "b", "second"),
	}}
	stage := retriever.NewRerankStage(brokenReranker{}, nil)
	uc := NewAnswerUseCase(r, stage, &stubGenerator{}, AnswerOptions{})

	ans, err := uc.Answer(context.Background(), "q", nil, 2)
	require.NoError(t, err)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "a", ans.Sources[0].Title)
	assert.Equal(t, "b", ans.Sources[1].Title)
}

func TestAnswer_Diversifier(t *testing.T) {
	r := &stubRetriever{results: []domain.ScoredRecord{
		hit(0, "a", "refund policy for annual plans"),
		hit(1, "b", "refund policy for annual plans"),
		hit(2, "c", "shipping times for europe"),
	}}
	div := retriever.NewDiversifier(analyzer.NewTokenizer(false), 0.5, 0.9)
	uc := NewAnswerUseCase(r, nil, nil, AnswerOptions{CandidateMultiplier: 2, Diversifier: div})

	ans, err := uc.Answer(context.Background(), "refund", nil, 2)
	require.NoError(t, err)

	var titles []string
	for _, s := range ans.Sources {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{"a", "c"}, titles)
}

func TestPackContext(t *testing.T) {
	hits := []domain.ScoredRecord{
		hit(0, "a", "first"),
		{Record: domain.ChunkRecord{Text: "untitled"}},
		hit(2, "c", "third"),
	}

	t.Run("unbounded", func(t *testing.T) {
		text, used := PackContext(hits, 0)
		assert.Equal(t, "[a] first\n\n[doc] untitled\n\n[c] third", text)
		assert.Equal(t, 3, used)
	})

	t.Run("budget stops before overflow", func(t *testing.T) {
		text, used := PackContext(hits, len("[a] first\n\n[doc] untitled")+3)
		assert.Equal(t, "[a] first\n\n[doc] untitled", text)
		assert.Equal(t, 2, used)
	})

	t.Run("first block truncated", func(t *testing.T) {
		text, used := PackContext(hits, 5)
		assert.Equal(t, "[a] f", text)
		assert.Equal(t, 1, used)
	})

	t.Run("empty", func(t *testing.T) {
		text, used := PackContext(nil, 100)
		assert.Empty(t, text)
		assert.Equal(t, 0, used)
	})
}

func TestPackContext_TruncatesOnRuneBoundary(t *testing.T) {
	hits := []domain.ScoredRecord{{Record: domain.ChunkRecord{Title: "x", Text: strings.Repeat("é", 10)}}}

	// "[x] " is 4 bytes, each é is 2
	text, used := PackContext(hits, 7)
	assert.Equal(t, 1, used)
	assert.Equal(t, "[x] é", text)
}
