package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"hybridrag/config"
	"hybridrag/internal/adapter/embedding"
	"hybridrag/internal/adapter/store"
	"hybridrag/internal/eval"
	"hybridrag/internal/port"
	"hybridrag/internal/usecase"
)

func main() {
	rootDir := flag.String("dir", ".", "Directory holding hybridrag.yaml and the index")
	judgmentsPath := flag.String("judgments", "", "JSONL file of {query, roles, relevant} lines")
	topK := flag.Int("k", 10, "Number of results per query")
	verbose := flag.Bool("v", false, "Print per-query results")
	flag.Parse()

	if *judgmentsPath == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./kb -judgments queries.jsonl")
		fmt.Println("\nReports, averaged over all queries:")
		fmt.Println("  precision@k, recall@k, MRR and binary NDCG of distinct retrieved paths")
		os.Exit(1)
	}

	if err := config.LoadEnv(*rootDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromDir(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*judgmentsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening judgments: %v\n", err)
		os.Exit(1)
	}
	judgments, err := eval.ReadJudgments(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading judgments: %v\n", err)
		os.Exit(1)
	}

	coordinator, err := setupCoordinator(cfg, *rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval not available: %v\n", err)
		os.Exit(1)
	}
	defer coordinator.Close()

	stats := coordinator.Stats()
	fmt.Println("HYBRID RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Records indexed: %d\n", stats.Records)
	fmt.Printf("Model: %s (%s, dimension %d)\n", stats.Model, cfg.Embedding.Provider, stats.Dimension)
	fmt.Printf("RRF K: %d, overfetch: %d, k: %d\n", cfg.Retrieve.RRFK, cfg.Retrieve.Overfetch, *topK)
	fmt.Printf("Queries: %d\n", len(judgments))
	fmt.Println()

	report, results, err := eval.Run(context.Background(), coordinator, judgments, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark error: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		for i, r := range results {
			fmt.Printf("%d. %q\n", i+1, r.Judgment.Query)
			for rank, p := range r.Retrieved {
				mark := " "
				for _, rel := range r.Judgment.Relevant {
					if rel == p {
						mark = "*"
					}
				}
				fmt.Printf("   %s %2d %s\n", mark, rank+1, p)
			}
			fmt.Println()
		}
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Precision@%d: %.3f\n", *topK, report.Precision)
	fmt.Printf("  Recall@%d:    %.3f\n", *topK, report.Recall)
	fmt.Printf("  MRR:          %.3f\n", report.MRR)
	fmt.Printf("  NDCG@%d:      %.3f\n", *topK, report.NDCG)

	if report.MRR > 0.7 {
		fmt.Println("  Status: GOOD - relevant documents rank near the top")
	} else if report.MRR > 0.4 {
		fmt.Println("  Status: OK - relevant documents are found but rank low")
	} else {
		fmt.Println("  Status: POOR - check the embedding model or re-ingest")
	}
}

func setupCoordinator(cfg *config.Config, root string) (*usecase.Coordinator, error) {
	var embedder port.Embedder
	opts := embedding.Options{
		APIKeyEnv: cfg.Embedding.APIKeyEnv,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
	}

	switch cfg.Embedding.Provider {
	case "ollama":
		embedder = embedding.NewOllamaEmbedder(opts)
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(opts)
		if err != nil {
			return nil, fmt.Errorf("embedder init failed: %w", err)
		}
		embedder = e
	case "hash":
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}

	st, err := store.OpenFileVectorStore(cfg.StoreDir(root), store.WithOverfetch(cfg.Retrieve.Overfetch))
	if err != nil {
		return nil, fmt.Errorf("index open failed: %w", err)
	}
	if st.Len() == 0 {
		st.Close()
		return nil, fmt.Errorf("index is empty - run 'hybridrag ingest' first")
	}

	coordinator, err := usecase.NewCoordinator(st, embedder, usecase.RetrieveParams{
		TopK:      cfg.Retrieve.TopK,
		RRFK:      cfg.Retrieve.RRFK,
		Overfetch: cfg.Retrieve.Overfetch,
		K1:        cfg.Retrieve.K1,
		B:         cfg.Retrieve.B,
		Stopwords: cfg.Retrieve.Stopwords,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return coordinator, nil
}
