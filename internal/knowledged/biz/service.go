package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/errors"
	"github.com/synaptiq/knowledged/pkg/llm"
)

// ChatService answers questions grounded in one organization's documents.
type ChatService interface {
	// ChatStream answers the conversation's last message as a token
	// stream. The sources backing the answer are known before the first
	// token is produced.
	ChatStream(ctx context.Context, orgURL string, messages []llm.Message) (<-chan llm.StreamChunk, []model.ChunkSource, error)

	// Query is the non-streaming variant with result caching.
	Query(ctx context.Context, orgURL, question string) (*model.QueryResult, error)

	// Stats reports knowledge-base-wide figures.
	Stats(ctx context.Context) (map[string]any, error)
}

type chatService struct {
	retriever *Retriever
	prompts   *PromptBuilder
	generator *Generator
	cache     *QueryCache
	orgs      store.OrgStore
	vectors   store.VectorStore

	collection    string
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
}

// NewChatService wires the retrieval, prompt, and generation stages into
// the chat flow.
func NewChatService(
	retriever *Retriever,
	generator *Generator,
	cache *QueryCache,
	factory store.Factory,
	vectors store.VectorStore,
	collection string,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
) ChatService {
	return &chatService{
		retriever:     retriever,
		prompts:       NewPromptBuilder(),
		generator:     generator,
		cache:         cache,
		orgs:          factory.Orgs(),
		vectors:       vectors,
		collection:    collection,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
	}
}

// lastQuestion extracts the question from a conversation: the content of
// the final message. Whitespace-only content counts as missing.
func lastQuestion(messages []llm.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return strings.TrimSpace(messages[len(messages)-1].Content)
}

// prepare runs the shared pre-generation stages: validate the question,
// resolve the org profile, retrieve grounding chunks, assemble prompts.
// Retrieval failure degrades to an empty context instead of failing the
// chat; the model then answers from general knowledge per the prompt's
// precedence rule.
func (s *chatService) prepare(ctx context.Context, orgURL, question string) (system, prompt string, sources []model.ChunkSource, err error) {
	if question == "" {
		return "", "", nil, errors.ErrMissingParam.WithMessage("question is required")
	}

	org, orgErr := s.orgs.GetByURL(ctx, orgURL)
	if orgErr != nil {
		logger.Warnw("organization profile unavailable", "org_url", orgURL, "error", orgErr.Error())
		org = nil
	}

	chunks, retErr := s.retriever.Retrieve(ctx, question, orgURL, 0)
	if retErr != nil {
		logger.Warnw("retrieval failed, answering without context",
			"org_url", orgURL, "error", retErr.Error())
		chunks = nil
	}

	sources = make([]model.ChunkSource, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, model.ChunkSource{
			Filename: chunk.Source,
			Page:     chunk.Page,
			Score:    chunk.Score,
		})
	}

	system, prompt = s.prompts.Build(chunks, org, question)
	return system, prompt, sources, nil
}

func (s *chatService) ChatStream(ctx context.Context, orgURL string, messages []llm.Message) (<-chan llm.StreamChunk, []model.ChunkSource, error) {
	question := lastQuestion(messages)

	system, prompt, sources, err := s.prepare(ctx, orgURL, question)
	if err != nil {
		return nil, nil, err
	}

	stream, err := s.generator.Stream(ctx, prompt, system)
	if err != nil {
		return nil, nil, err
	}
	return stream, sources, nil
}

func (s *chatService) Query(ctx context.Context, orgURL, question string) (*model.QueryResult, error) {
	question = strings.TrimSpace(question)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, orgURL, question); err == nil && cached != nil {
			return cached, nil
		}
	}

	system, prompt, sources, err := s.prepare(ctx, orgURL, question)
	if err != nil {
		return nil, err
	}

	resp, err := s.generator.Generate(ctx, prompt, system)
	if err != nil {
		return nil, err
	}

	result := &model.QueryResult{
		Answer:   resp.Content,
		Sources:  sources,
		Question: question,
		OrgURL:   orgURL,
	}

	if s.cache != nil {
		// A failed cache write only costs the next caller a regeneration.
		_ = s.cache.Set(ctx, orgURL, question, result)
	}
	return result, nil
}

func (s *chatService) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.vectors.RowCount(ctx, s.collection)
	if err != nil {
		return nil, errors.ErrVectorStore.WithCause(err)
	}

	stats := map[string]any{
		"collection":     s.collection,
		"chunk_count":    count,
		"embed_provider": s.embedProvider.Name(),
		"chat_provider":  s.chatProvider.Name(),
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(ctx); err == nil {
			stats["cache"] = cacheStats
		}
	}
	return stats, nil
}

var _ ChatService = (*chatService)(nil)
