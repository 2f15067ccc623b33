package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/component/milvus"
)

// MilvusStore implements VectorStore on top of the Milvus component.
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore creates a Milvus-backed vector store.
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

var _ VectorStore = (*MilvusStore)(nil)

// EnsureCollection creates the chunk collection. All provenance metadata is
// stored as flat top-level fields so filter expressions stay plain equality.
func (s *MilvusStore) EnsureCollection(ctx context.Context, config *CollectionConfig) error {
	schema := &milvus.CollectionSchema{
		Name:        config.Name,
		Description: config.Description,
		Dimension:   config.Dimension,
		MetaFields: []milvus.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "source", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "page", DataType: entity.FieldTypeVarChar, MaxLen: 16},
			{Name: "org_url", DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: "org_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	}
	return s.client.EnsureCollection(ctx, schema)
}

// Insert stores chunks in Milvus. Every chunk must already carry its org
// scope and source provenance.
func (s *MilvusStore) Insert(ctx context.Context, collection string, chunks []*Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"document_id": make([]any, len(chunks)),
		"source":      make([]any, len(chunks)),
		"page":        make([]any, len(chunks)),
		"org_url":     make([]any, len(chunks)),
		"org_id":      make([]any, len(chunks)),
		"content":     make([]any, len(chunks)),
	}

	for i, chunk := range chunks {
		if chunk.OrgURL == "" || chunk.Source == "" {
			return nil, fmt.Errorf("chunk %d is missing provenance (org_url=%q source=%q)", i, chunk.OrgURL, chunk.Source)
		}
		page := chunk.Page
		if page == "" {
			page = model.PageUnknown
		}
		embeddings[i] = chunk.Embedding
		metadata["document_id"][i] = chunk.DocumentID
		metadata["source"][i] = chunk.Source
		metadata["page"][i] = page
		metadata["org_url"][i] = chunk.OrgURL
		metadata["org_id"][i] = chunk.OrgID
		metadata["content"][i] = chunk.Content
	}

	ids, err := s.client.Insert(ctx, collection, &milvus.InsertData{
		Embeddings: embeddings,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert into milvus: %w", err)
	}

	stringIDs := make([]string, len(ids))
	for i, id := range ids {
		stringIDs[i] = fmt.Sprintf("%d", id)
	}
	return stringIDs, nil
}

var chunkOutputFields = []string{"document_id", "source", "page", "org_url", "org_id", "content"}

// Search runs a filtered similarity search and maps hits back to retrieved
// chunks with provenance.
func (s *MilvusStore) Search(ctx context.Context, collection string, embedding []float32, filter string, topK int) ([]*model.RetrievedChunk, error) {
	results, err := s.client.Search(ctx, collection, embedding, topK, filter, chunkOutputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	chunks := make([]*model.RetrievedChunk, 0, len(results))
	for _, r := range results {
		chunk := &model.RetrievedChunk{Score: r.Score}
		if v, ok := r.Metadata["document_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := r.Metadata["source"].(string); ok {
			chunk.Source = v
		}
		if v, ok := r.Metadata["page"].(string); ok {
			chunk.Page = v
		}
		if v, ok := r.Metadata["org_url"].(string); ok {
			chunk.OrgURL = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			chunk.Content = v
		}
		if chunk.Page == "" {
			chunk.Page = model.PageUnknown
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// DeleteByFilter removes chunks matching the expression.
func (s *MilvusStore) DeleteByFilter(ctx context.Context, collection, filter string) error {
	return s.client.DeleteByFilter(ctx, collection, filter)
}

// RowCount returns the total number of chunks.
func (s *MilvusStore) RowCount(ctx context.Context, collection string) (int64, error) {
	return s.client.RowCount(ctx, collection)
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
