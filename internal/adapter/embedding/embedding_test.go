package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	assert.Equal(t, 64, e.Dimension())
	assert.Equal(t, "hash-64", e.ModelName())

	vecs, err := e.Embed(context.Background(), []string{
		"vacation policy days",
		"vacation policy days",
		"kubernetes deploy pipeline",
		"the",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	for _, v := range vecs {
		assert.Len(t, v, 64)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}
	assert.Equal(t, vecs[0], vecs[1])
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

type embeddingPayload struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeEmbeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
			return
		}

		var req embeddingPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		// reverse order to check index handling
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     j,
				"embedding": []float32{float32(len(req.Input[j])), 0, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestOpenAIEmbedder_BatchesInOrder(t *testing.T) {
	srv := fakeEmbeddingServer(t, http.StatusOK)
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "k")
	e, err := NewOpenAIEmbedder(Options{
		APIKeyEnv: "TEST_EMBED_KEY",
		Model:     "text-embedding-3-small",
		BaseURL:   srv.URL,
		BatchSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for _, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}
}

func TestOpenAIEmbedder_ServerErrorIsUnavailable(t *testing.T) {
	srv := fakeEmbeddingServer(t, http.StatusInternalServerError)
	defer srv.Close()

	e := NewOllamaEmbedder(Options{Model: "nomic-embed-text", BaseURL: srv.URL})
	assert.Equal(t, 768, e.Dimension())

	_, err := e.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
}

func TestOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "")
	_, err := NewOpenAIEmbedder(Options{APIKeyEnv: "TEST_EMBED_KEY", Model: "m"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e := NewOllamaEmbedder(Options{Model: "all-minilm"})
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
