package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"hybridrag/internal/domain"
)

const (
	DefaultBatchSize = 100
	defaultOllamaURL = "http://localhost:11434/v1"

	// maxInflight bounds concurrent embedding requests.
	maxInflight = 4
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint and returns
// unit-length vectors.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// Options configures an OpenAIEmbedder.
type Options struct {
	APIKeyEnv string
	Model     string
	BaseURL   string
	Dimension int // 0 selects the model's known width
	BatchSize int
}

func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(opts.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", opts.APIKeyEnv)
	}
	return newEmbedder(apiKey, opts), nil
}

// NewOllamaEmbedder talks to Ollama's OpenAI-compatible API. No key is needed.
func NewOllamaEmbedder(opts Options) *OpenAIEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOllamaURL
	}
	return newEmbedder("ollama", opts)
}

func newEmbedder(apiKey string, opts Options) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	dimension := opts.Dimension
	if dimension == 0 {
		dimension = knownDimension(opts.Model)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large", "jina-embeddings-v3":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

// Embed splits texts into batches, embeds them concurrently and returns
// vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: batch,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.Unavailable("embed", fmt.Errorf("%s: %w", e.model, err))
	}

	vecs := make([][]float32, len(batch))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(batch) {
			return nil, domain.Unavailable("embed", fmt.Errorf("response index %d out of range", data.Index))
		}
		v := make([]float32, len(data.Embedding))
		for i, x := range data.Embedding {
			v[i] = float32(x)
		}
		l2normalize(v)
		vecs[data.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, domain.Unavailable("embed", fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
