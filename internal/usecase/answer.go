package usecase

import (
	"context"
	"fmt"
	"strings"

	"hybridrag/internal/adapter/retriever"
	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
	"hybridrag/internal/port"
)

const (
	defaultTitle = "doc"

	// NoContextAnswer is returned without calling the generator when nothing
	// visible to the caller matched.
	NoContextAnswer = "I don't know."
)

// AnswerUseCase runs retrieve, rerank, context packing and generation.
type AnswerUseCase struct {
	retriever    port.Retriever
	rerank       *retriever.RerankStage
	diversifier  *retriever.Diversifier
	generator    port.Generator
	topK         int
	multiplier   int
	contextChars int
}

// AnswerOptions configures an AnswerUseCase.
type AnswerOptions struct {
	TopK                int
	CandidateMultiplier int // candidates fetched = TopK * CandidateMultiplier
	ContextChars        int // 0 means unbounded
	Diversifier         *retriever.Diversifier
}

// NewAnswerUseCase wires the pipeline. rerank and generator may be nil; a nil
// generator makes Answer return the packed context only.
func NewAnswerUseCase(r port.Retriever, rerank *retriever.RerankStage, generator port.Generator, opts AnswerOptions) *AnswerUseCase {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = 2
	}
	if rerank == nil {
		rerank = retriever.NewRerankStage(nil, nil)
	}
	return &AnswerUseCase{
		retriever:    r,
		rerank:       rerank,
		diversifier:  opts.Diversifier,
		generator:    generator,
		topK:         opts.TopK,
		multiplier:   opts.CandidateMultiplier,
		contextChars: opts.ContextChars,
	}
}

// Answer retrieves topK*multiplier candidates, reranks them, keeps topK and
// asks the generator to answer from their text.
func (u *AnswerUseCase) Answer(ctx context.Context, question string, roles []string, topK int) (*domain.Answer, error) {
	if topK <= 0 {
		topK = u.topK
	}

	candidates, err := u.retriever.Retrieve(ctx, question, roles, topK*u.multiplier)
	if err != nil {
		return nil, err
	}

	hits := u.rerank.Rerank(ctx, question, candidates)
	if u.diversifier != nil {
		hits = u.diversifier.Diversify(hits, topK)
	} else if len(hits) > topK {
		hits = hits[:topK]
	}

	contextText, used := PackContext(hits, u.contextChars)
	hits = hits[:used]

	answer := &domain.Answer{
		Question: question,
		Context:  contextText,
		Sources:  Sources(hits),
	}

	switch {
	case len(hits) == 0:
		answer.Answer = NoContextAnswer
	case u.generator != nil:
		text, err := u.generator.Generate(ctx, question, contextText)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		answer.Answer = text
	}

	logger.Debug(ctx, "answer",
		"candidates", len(candidates),
		"sources", len(hits),
		"context_chars", len(contextText),
		"reranked", u.rerank.Enabled(),
	)
	return answer, nil
}

// PackContext renders hits as "[title] text" blocks separated by blank
// lines, stopping before the block that would exceed budget characters.
// The first block is truncated rather than dropped. It returns the context
// and the number of hits it covers.
func PackContext(hits []domain.ScoredRecord, budget int) (string, int) {
	var b strings.Builder
	used := 0
	for _, h := range hits {
		block := "[" + titleOf(h.Record) + "] " + h.Record.Text
		sep := 0
		if used > 0 {
			sep = 2
		}
		if budget > 0 && b.Len()+sep+len(block) > budget {
			if used == 0 {
				b.WriteString(truncate(block, budget))
				used = 1
			}
			break
		}
		if used > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		used++
	}
	return b.String(), used
}

// Sources converts hits to their display shape.
func Sources(hits []domain.ScoredRecord) []domain.Source {
	out := make([]domain.Source, len(hits))
	for i, h := range hits {
		out[i] = domain.Source{
			Title: titleOf(h.Record),
			Path:  h.Record.Path,
			Roles: h.Record.Roles,
			Score: h.Score,
		}
	}
	return out
}

func titleOf(r domain.ChunkRecord) string {
	if strings.TrimSpace(r.Title) == "" {
		return defaultTitle
	}
	return r.Title
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
