package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
	"hybridrag/internal/metrics"
	"hybridrag/internal/port"
)

const defaultCohereURL = "https://api.cohere.ai/v1/rerank"

// CohereReranker implements cross-encoder reranking using Cohere's API.
type CohereReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Cohere API types
type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []cohereRerankResult `json:"results"`
}

type cohereRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewCohereReranker creates a new Cohere reranker. An empty baseURL uses the
// public endpoint.
func NewCohereReranker(apiKeyEnv, model, baseURL string) (*CohereReranker, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	if model == "" {
		model = "rerank-english-v3.0"
	}
	if baseURL == "" {
		baseURL = defaultCohereURL
	}

	return &CohereReranker{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Score returns one relevance score per passage, in input order.
func (r *CohereReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	// Cohere has a limit of 1000 documents per request
	const maxDocs = 1000
	docs := passages
	if len(docs) > maxDocs {
		docs = docs[:maxDocs]
	}

	jsonData, err := json.Marshal(cohereRerankRequest{
		Query:     query,
		Documents: docs,
		Model:     r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("rerank", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Unavailable("rerank", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Unavailable("rerank", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var rerankResp cohereRerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// passages past the request limit keep the lowest possible score
	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = -1
	}
	for _, res := range rerankResp.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}

// ModelName returns the model name.
func (r *CohereReranker) ModelName() string {
	return r.model
}

// OverlapReranker scores passages by the fraction of query terms they
// contain. It needs no external service.
type OverlapReranker struct{}

func NewOverlapReranker() *OverlapReranker {
	return &OverlapReranker{}
}

func (r *OverlapReranker) Score(_ context.Context, query string, passages []string) ([]float64, error) {
	queryTerms := termSet(query)
	scores := make([]float64, len(passages))
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		docTerms := termSet(p)
		matches := 0
		for term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				matches++
			}
		}
		scores[i] = float64(matches) / float64(len(queryTerms))
	}
	return scores, nil
}

func (r *OverlapReranker) ModelName() string {
	return "term-overlap"
}

// termSet splits text on anything that is not a letter, digit or underscore
// and keeps lowercase terms of two or more characters.
func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
	for _, f := range fields {
		if len(f) >= 2 {
			terms[f] = struct{}{}
		}
	}
	return terms
}

// RerankStage reorders fused candidates with a pairwise Reranker. It never
// fails: with no reranker, or when the reranker errors or returns the wrong
// number of scores, candidates keep their fused order with score 0.
type RerankStage struct {
	reranker port.Reranker
	metrics  *metrics.Metrics
}

// NewRerankStage creates a stage. reranker may be nil.
func NewRerankStage(reranker port.Reranker, m *metrics.Metrics) *RerankStage {
	return &RerankStage{reranker: reranker, metrics: m}
}

// Enabled reports whether a reranker is configured.
func (s *RerankStage) Enabled() bool {
	return s != nil && s.reranker != nil
}

// Rerank returns candidates ordered by reranker score, highest first, with
// fused rank breaking ties.
func (s *RerankStage) Rerank(ctx context.Context, query string, candidates []domain.ScoredRecord) []domain.ScoredRecord {
	if len(candidates) == 0 {
		return nil
	}
	if !s.Enabled() {
		return passThrough(candidates)
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Record.Text
	}

	scores, err := s.reranker.Score(ctx, query, passages)
	if err != nil {
		logger.Warn(ctx, "rerank failed, keeping fused order",
			"model", s.reranker.ModelName(), "candidates", len(candidates), "error", err)
		s.metrics.RerankFallback("error")
		return passThrough(candidates)
	}
	if len(scores) != len(candidates) {
		logger.Warn(ctx, "rerank returned wrong number of scores, keeping fused order",
			"model", s.reranker.ModelName(), "want", len(candidates), "got", len(scores))
		s.metrics.RerankFallback("count")
		return passThrough(candidates)
	}

	out := make([]domain.ScoredRecord, len(candidates))
	for i, c := range candidates {
		c.Score = scores[i]
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func passThrough(candidates []domain.ScoredRecord) []domain.ScoredRecord {
	out := make([]domain.ScoredRecord, len(candidates))
	for i, c := range candidates {
		c.Score = 0
		out[i] = c
	}
	return out
}
