package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/errors"
	"github.com/synaptiq/knowledged/pkg/llm"
)

const defaultTopK = 4

// RetrieverConfig configures tenant-scoped retrieval.
type RetrieverConfig struct {
	// Collection is the vector collection to search.
	Collection string
	// TopK is the default number of chunks returned.
	TopK int
}

// Retriever answers similarity queries scoped to one organization.
type Retriever struct {
	vectors  store.VectorStore
	embedder llm.EmbeddingProvider
	config   *RetrieverConfig
}

// NewRetriever creates a retriever.
func NewRetriever(vectors store.VectorStore, embedder llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config.TopK <= 0 {
		config.TopK = defaultTopK
	}
	return &Retriever{
		vectors:  vectors,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve embeds the question and searches the org's chunks. The tenant
// filter is applied server side as a flat equality expression. An empty
// orgURL searches across all tenants and exists for diagnostics only.
// Zero results is a valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question, orgURL string, topK int) ([]*model.RetrievedChunk, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	embedding, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, errors.ErrEmbedding.WithCause(err)
	}

	var filter string
	if orgURL != "" {
		filter = store.TenantFilter(orgURL)
	} else {
		logger.Warnw("unfiltered retrieval", "question_length", len(question))
	}

	chunks, err := r.vectors.Search(ctx, r.config.Collection, embedding, filter, topK)
	if err != nil {
		return nil, errors.ErrVectorStore.WithCause(err)
	}

	logger.Infow("retrieval completed",
		"org_url", orgURL,
		"top_k", topK,
		"results", len(chunks),
	)
	return chunks, nil
}
