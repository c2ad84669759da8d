package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.True(t, strings.Contains(req.Messages[1].Content, "Context:\n[leave.md]"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func newTestGenerator(t *testing.T, url string) *OpenAIGenerator {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "k")
	g, err := NewOpenAIGenerator(Options{APIKeyEnv: "TEST_LLM_KEY", BaseURL: url, Temperature: 0.2})
	require.NoError(t, err)
	return g
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv := chatServer(t, " 20 days [leave.md] ", http.StatusOK)
	defer srv.Close()

	g := newTestGenerator(t, srv.URL)
	assert.Equal(t, "gpt-4o-mini", g.ModelName())

	answer, err := g.Generate(context.Background(), "How many vacation days?", "[leave.md] Employees get 20 days.")
	require.NoError(t, err)
	assert.Equal(t, "20 days [leave.md]", answer)
}

func TestOpenAIGenerator_EmptyAnswerFallsBack(t *testing.T) {
	srv := chatServer(t, "", http.StatusOK)
	defer srv.Close()

	answer, err := newTestGenerator(t, srv.URL).Generate(context.Background(), "q", "[leave.md] x")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
}

func TestOpenAIGenerator_ServerError(t *testing.T) {
	srv := chatServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), "q", "[leave.md] x")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
}

func TestUserPrompt(t *testing.T) {
	p := UserPrompt("Q?", "[a] text")
	assert.Equal(t, "Question:\nQ?\n\nContext:\n[a] text\n\nAnswer succinctly with citations.", p)
}
