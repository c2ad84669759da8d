package port

import "context"

// Generator turns a question and retrieved context into prose.
type Generator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Reranker scores (query, passage) pairs with a pairwise relevance model.
type Reranker interface {
	// Score returns one score per passage, in input order. Higher is more relevant.
	Score(ctx context.Context, query string, passages []string) ([]float64, error)

	// ModelName returns the name of the reranking model.
	ModelName() string
}
