package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/synaptiq/knowledged/pkg/errors"
	"github.com/synaptiq/knowledged/pkg/llm"
)

// Generator produces answers from assembled prompts.
type Generator struct {
	chatProvider llm.ChatProvider
}

// NewGenerator creates a generator.
func NewGenerator(chatProvider llm.ChatProvider) *Generator {
	return &Generator{chatProvider: chatProvider}
}

// Stream starts a streamed generation and forwards the provider's channel.
// Tokens reach the caller as they arrive; a mid-stream upstream failure
// terminates the channel with an error chunk after whatever partial output
// was already delivered. Streams are never retried.
func (g *Generator) Stream(ctx context.Context, prompt, systemPrompt string) (<-chan llm.StreamChunk, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before generation: %w", ctx.Err())
	}

	stream, err := g.chatProvider.GenerateStream(ctx, prompt, systemPrompt)
	if err != nil {
		return nil, errors.ErrGeneration.WithCause(err)
	}
	return stream, nil
}

// Generate produces a complete answer in one call.
func (g *Generator) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.GenerateResponse, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before generation: %w", ctx.Err())
	}

	resp, err := g.chatProvider.Generate(ctx, prompt, systemPrompt)
	if err != nil {
		return nil, errors.ErrGeneration.WithCause(err)
	}

	if resp.TokenUsage != nil {
		logger.Infow("answer generated",
			"length", len(resp.Content),
			"total_tokens", resp.TokenUsage.TotalTokens,
		)
	} else {
		logger.Infow("answer generated", "length", len(resp.Content))
	}
	return resp, nil
}
