package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"hybridrag/config"
	"hybridrag/internal/adapter/analyzer"
	"hybridrag/internal/adapter/cache"
	"hybridrag/internal/adapter/embedding"
	"hybridrag/internal/adapter/llm"
	"hybridrag/internal/adapter/retriever"
	"hybridrag/internal/adapter/store"
	"hybridrag/internal/metrics"
	"hybridrag/internal/port"
	"hybridrag/internal/usecase"
)

// engine bundles the components one command needs. It owns the store.
type engine struct {
	cfg         *config.Config
	store       *store.FileVectorStore
	coordinator *usecase.Coordinator
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
}

func openEngine(cfg *config.Config, root string) (*engine, error) {
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	dir := cfg.StoreDir(root)
	st, err := store.OpenFileVectorStore(dir, store.WithOverfetch(cfg.Retrieve.Overfetch))
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", dir, err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	opts := []usecase.CoordinatorOption{usecase.WithMetrics(m)}
	if cfg.Retrieve.CacheSize > 0 {
		opts = append(opts, usecase.WithQueryCache(cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)))
	}

	coordinator, err := usecase.NewCoordinator(st, embedder, usecase.RetrieveParams{
		TopK:      cfg.Retrieve.TopK,
		RRFK:      cfg.Retrieve.RRFK,
		Overfetch: cfg.Retrieve.Overfetch,
		K1:        cfg.Retrieve.K1,
		B:         cfg.Retrieve.B,
		Stopwords: cfg.Retrieve.Stopwords,
	}, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &engine{
		cfg:         cfg,
		store:       st,
		coordinator: coordinator,
		registry:    reg,
		metrics:     m,
	}, nil
}

func (e *engine) Close() error {
	return e.coordinator.Close()
}

// answerer builds the answer pipeline. withGenerator=false leaves the
// generator out so only context and sources are produced.
func (e *engine) answerer(withGenerator bool) (*usecase.AnswerUseCase, error) {
	reranker, err := newReranker(e.cfg.Rerank)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker: %w", err)
	}

	var generator port.Generator
	if withGenerator {
		generator, err = newGenerator(e.cfg.Generation)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
	}

	var diversifier *retriever.Diversifier
	if e.cfg.Retrieve.MMRLambda > 0 {
		diversifier = retriever.NewDiversifier(
			analyzer.NewTokenizer(true), e.cfg.Retrieve.MMRLambda, e.cfg.Retrieve.DedupJaccard)
	}

	return usecase.NewAnswerUseCase(
		e.coordinator,
		retriever.NewRerankStage(reranker, e.metrics),
		generator,
		usecase.AnswerOptions{
			TopK:                e.cfg.Retrieve.TopK,
			CandidateMultiplier: e.cfg.Retrieve.CandidateMultiplier,
			ContextChars:        e.cfg.Generation.ContextChars,
			Diversifier:         diversifier,
		},
	), nil
}

func newEmbedder(c config.EmbeddingConfig) (port.Embedder, error) {
	opts := embedding.Options{
		APIKeyEnv: c.APIKeyEnv,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		Dimension: c.Dimension,
		BatchSize: c.BatchSize,
	}

	switch c.Provider {
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "ollama":
		return embedding.NewOllamaEmbedder(opts), nil
	case "hash":
		return embedding.NewHashEmbedder(c.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Provider)
	}
}

func newReranker(c config.RerankConfig) (port.Reranker, error) {
	switch c.Provider {
	case "", "none":
		return nil, nil
	case "cohere":
		r, err := retriever.NewCohereReranker(c.APIKeyEnv, c.Model, c.BaseURL)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "overlap":
		return retriever.NewOverlapReranker(), nil
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %s", c.Provider)
	}
}

func newGenerator(c config.GenerationConfig) (port.Generator, error) {
	switch c.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		g, err := llm.NewOpenAIGenerator(llm.Options{
			APIKeyEnv:   c.APIKeyEnv,
			Model:       c.Model,
			BaseURL:     c.BaseURL,
			Temperature: c.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", c.Provider)
	}
}

// writeMetrics prints every collected sample as "name{labels} value".
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				if labels != "" {
					labels += ","
				}
				labels += fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue())
			}
			if labels != "" {
				labels = "{" + labels + "}"
			}

			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s_count%s %d\n", mf.GetName(), labels, h.GetSampleCount())
				fmt.Fprintf(w, "%s_sum%s %g\n", mf.GetName(), labels, h.GetSampleSum())
			}
		}
	}
	return nil
}

// withEngine opens the engine, runs fn and closes it, printing metrics
// when --metrics is set.
func withEngine(ctx context.Context, w io.Writer, fn func(context.Context, *engine) error) error {
	e, err := openEngine(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer e.Close()

	runErr := fn(ctx, e)
	if dumpMetrics {
		if err := writeMetrics(w, e.registry); err != nil {
			return err
		}
	}
	return runErr
}
