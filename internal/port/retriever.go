package port

import (
	"context"

	"hybridrag/internal/domain"
)

// Retriever returns the top-k records visible to roles for query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, roles []string, topK int) ([]domain.ScoredRecord, error)
}
