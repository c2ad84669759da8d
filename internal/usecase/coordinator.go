package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hybridrag/internal/adapter/analyzer"
	"hybridrag/internal/adapter/cache"
	"hybridrag/internal/adapter/retriever"
	"hybridrag/internal/adapter/store"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
	"hybridrag/internal/metrics"
	"hybridrag/internal/port"
)

// RetrieveParams holds the ranking knobs of a Coordinator.
type RetrieveParams struct {
	TopK      int
	RRFK      int
	Overfetch int
	K1        float64
	B         float64
	Stopwords bool
}

// DefaultRetrieveParams returns the standard BM25 and fusion settings.
func DefaultRetrieveParams() RetrieveParams {
	return RetrieveParams{
		TopK:      5,
		RRFK:      retriever.DefaultRRFK,
		Overfetch: store.DefaultOverfetch,
		K1:        retriever.DefaultK1,
		B:         retriever.DefaultB,
	}
}

// Coordinator owns the vector store and the lexical index over the same
// records and answers hybrid queries against both. Searches run under a
// shared lock; Add and Refresh take it exclusively, so readers always see a
// store and lexical index of the same length.
type Coordinator struct {
	mu        sync.RWMutex
	store     *store.FileVectorStore
	lexical   *retriever.LexicalIndex
	embedder  port.Embedder
	tokenizer *analyzer.Tokenizer
	params    RetrieveParams
	cache     *cache.QueryCache
	metrics   *metrics.Metrics

	generation uint64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithQueryCache enables result caching. Entries are dropped on Add and Refresh.
func WithQueryCache(c *cache.QueryCache) CoordinatorOption {
	return func(co *Coordinator) { co.cache = c }
}

// WithMetrics reports retrieval and indexing metrics to m.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(co *Coordinator) { co.metrics = m }
}

// NewCoordinator binds embedder to the store and builds the lexical index
// from the persisted records. It fails when the store was built with a
// different embedding model.
func NewCoordinator(st *store.FileVectorStore, embedder port.Embedder, params RetrieveParams, opts ...CoordinatorOption) (*Coordinator, error) {
	def := DefaultRetrieveParams()
	if params.TopK <= 0 {
		params.TopK = def.TopK
	}
	if params.RRFK <= 0 {
		params.RRFK = def.RRFK
	}
	if params.Overfetch <= 0 {
		params.Overfetch = def.Overfetch
	}

	c := &Coordinator{
		store:     st,
		embedder:  embedder,
		tokenizer: analyzer.NewTokenizer(params.Stopwords),
		params:    params,
	}
	for _, opt := range opts {
		opt(c)
	}

	if m := st.Manifest(); m != nil {
		if err := m.Bind(embedder.ModelName(), st.Len() > 0); err != nil {
			return nil, err
		}
	}

	c.rebuildLexical()
	return c, nil
}

// Close releases the underlying store.
func (c *Coordinator) Close() error {
	return c.store.Close()
}

// Retrieve returns up to topK records visible under roles, ranked by
// reciprocal rank fusion of BM25 and vector similarity. topK <= 0 uses the
// configured default and empty roles mean {"all"}. A blank query is a
// validation error; an empty index yields no results.
func (c *Coordinator) Retrieve(ctx context.Context, query string, roles []string, topK int) ([]domain.ScoredRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Validation("retrieve", domain.ErrEmptyQuery)
	}
	if topK <= 0 {
		topK = c.params.TopK
	}
	roles = domain.NormalizeRoles(roles)

	if c.cache == nil {
		return c.retrieve(ctx, query, roles, topK)
	}

	results, hit, err := c.cache.GetOrCompute(cache.Key(query, roles, topK), func() ([]domain.ScoredRecord, error) {
		return c.retrieve(ctx, query, roles, topK)
	})
	if err != nil {
		return nil, err
	}
	c.metrics.CacheLookup(hit)
	return results, nil
}

func (c *Coordinator) retrieve(ctx context.Context, query string, roles []string, topK int) ([]domain.ScoredRecord, error) {
	start := time.Now()
	defer c.metrics.ObserveStage("total", start)

	if c.store.Len() == 0 {
		c.metrics.ObserveResults(0)
		return []domain.ScoredRecord{}, nil
	}

	// embedding happens outside the lock so a slow backend never blocks Add
	embedStart := time.Now()
	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, asUnavailable("retrieve.embed", err)
	}
	if len(vecs) != 1 {
		return nil, domain.Unavailable("retrieve.embed", fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs)))
	}
	c.metrics.ObserveStage("embed", embedStart)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	searchStart := time.Now()
	var lexHits, vecHits []domain.ScoredRecord
	g := new(errgroup.Group)
	g.Go(func() error {
		lexHits = c.lexical.Search(query, topK, c.params.Overfetch, roles)
		for i := range lexHits {
			rec, ok := c.store.Record(lexHits[i].Index)
			if !ok {
				return fmt.Errorf("lexical hit %d outside store of %d records", lexHits[i].Index, c.store.Len())
			}
			lexHits[i].Record = rec
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vecHits, err = c.store.Search(vecs[0], topK, roles)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.metrics.ObserveStage("search", searchStart)

	fused := retriever.Fuse([][]domain.ScoredRecord{lexHits, vecHits}, c.params.RRFK, topK)

	logger.Debug(ctx, "retrieve",
		"query_len", len(query),
		"roles", roles,
		"lexical_hits", len(lexHits),
		"vector_hits", len(vecHits),
		"results", len(fused),
		"duration", time.Since(start),
	)
	c.metrics.ObserveResults(len(fused))
	return fused, nil
}

// Add embeds records and appends them to the index. The lexical index is
// rebuilt and cached results are dropped. An empty batch is a no-op.
// On failure nothing is appended.
func (c *Coordinator) Add(ctx context.Context, records []domain.ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	normalized := make([]domain.ChunkRecord, len(records))
	texts := make([]string, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return 0, domain.Validation("add", fmt.Errorf("record %d: %w", i, err))
		}
		normalized[i] = r.Normalize()
		texts[i] = r.Text
	}

	batchID := uuid.NewString()
	ctx = logger.WithValue(ctx, logger.BatchIDKey, batchID)

	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Error(ctx, "embedding batch failed", err, "records", len(records))
		return 0, asUnavailable("add.embed", err)
	}
	if len(vecs) != len(records) {
		return 0, domain.Unavailable("add.embed",
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(records)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Add(vecs, normalized); err != nil {
		logger.Error(ctx, "append failed", err, "records", len(records))
		return 0, err
	}
	c.rebuildLexical()
	c.bump()

	total := c.store.Len()
	c.metrics.AddRecords(len(records), total)
	logger.Info(ctx, "records added", "added", len(records), "total", total)
	return len(records), nil
}

// Refresh reloads the store from disk and rebuilds the lexical index.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Reload(); err != nil {
		return err
	}
	c.rebuildLexical()
	c.bump()

	total := c.store.Len()
	c.metrics.SetIndexSize(total)
	logger.Info(ctx, "index refreshed", "records", total)
	return nil
}

// Stats describes the index.
type Stats struct {
	Records    int    `json:"records"`
	Dimension  int    `json:"dimension"`
	Generation uint64 `json:"generation"`
	Model      string `json:"model"`
}

// Stats returns a snapshot of the index size, dimension and generation.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Records:    c.store.Len(),
		Dimension:  c.store.Dimension(),
		Generation: c.generation,
		Model:      c.embedder.ModelName(),
	}
}

// rebuildLexical must be called with mu held exclusively, or before the
// Coordinator is shared.
func (c *Coordinator) rebuildLexical() {
	c.lexical = retriever.BuildLexicalIndex(c.store.Records(), c.tokenizer, c.params.K1, c.params.B)
	c.metrics.LexicalRebuilt()
	c.metrics.SetIndexSize(c.lexical.Len())
}

func (c *Coordinator) bump() {
	c.generation++
	if c.cache != nil {
		c.cache.Invalidate()
	}
}

// asUnavailable classifies an unclassified backend error as Unavailable.
// Context cancellation passes through untouched.
func asUnavailable(op string, err error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.Unavailable(op, err)
}
