package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"hybridrag/internal/domain"
)

const systemPrompt = "Answer using only provided context. If unsure, say you don't know. " +
	"Always cite sources as [title]."

// FallbackAnswer is returned when the model produces no text.
const FallbackAnswer = "I don't know."

// OpenAIGenerator answers questions through an OpenAI-compatible chat
// completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

type Options struct {
	APIKeyEnv   string
	Model       string
	BaseURL     string
	Temperature float32
}

func NewOpenAIGenerator(opts Options) (*OpenAIGenerator, error) {
	apiKey := os.Getenv(opts.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", opts.APIKeyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: opts.Temperature,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(question, contextText)},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.Unavailable("generate", fmt.Errorf("%s: %w", g.model, err))
	}

	if len(resp.Choices) == 0 {
		return FallbackAnswer, nil
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}

func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

// UserPrompt formats the question and retrieved context for the model.
func UserPrompt(question, contextText string) string {
	return fmt.Sprintf("Question:\n%s\n\nContext:\n%s\n\nAnswer succinctly with citations.", question, contextText)
}
