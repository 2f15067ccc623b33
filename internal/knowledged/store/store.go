// Package store provides the persistence layer: the Milvus-backed vector
// store for chunks and the SQLite-backed metadata stores for documents and
// organizations.
package store

import (
	"context"
	"strconv"

	"github.com/synaptiq/knowledged/internal/model"
)

// Chunk is one embedded slice of a document, carrying full provenance.
// Every field is re-asserted at insert time; a chunk without its org scope
// or source must never reach the vector store.
type Chunk struct {
	DocumentID string
	Source     string
	Page       string
	OrgURL     string
	OrgID      string
	Content    string
	Embedding  []float32
}

// CollectionConfig describes the vector collection.
type CollectionConfig struct {
	Name        string
	Description string
	Dimension   int
}

// TenantFilter builds the server-side boolean expression that scopes a
// search to one organization. The slug is matched against the flat org_url
// field, never a nested JSON path.
func TenantFilter(orgURL string) string {
	return "org_url == " + strconv.Quote(orgURL)
}

// DocumentFilter scopes an expression to one document's chunks within an
// organization, used when deleting a document's vectors before re-ingest.
func DocumentFilter(orgURL, documentID string) string {
	return TenantFilter(orgURL) + " and document_id == " + strconv.Quote(documentID)
}

// VectorStore is the chunk storage interface.
type VectorStore interface {
	// EnsureCollection creates the collection if missing.
	EnsureCollection(ctx context.Context, config *CollectionConfig) error

	// Insert stores chunks with their embeddings and flat metadata.
	Insert(ctx context.Context, collection string, chunks []*Chunk) ([]string, error)

	// Search runs a tenant-scoped similarity search. The filter expression
	// is applied server side.
	Search(ctx context.Context, collection string, embedding []float32, filter string, topK int) ([]*model.RetrievedChunk, error)

	// DeleteByFilter removes all chunks matching the expression.
	DeleteByFilter(ctx context.Context, collection, filter string) error

	// RowCount returns the number of stored chunks.
	RowCount(ctx context.Context, collection string) (int64, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// DocumentStore is the document metadata interface.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, orgID, id string) error
	Get(ctx context.Context, orgID, id string) (*model.Document, error)
	GetByFilename(ctx context.Context, orgID, filename string) (*model.Document, error)
	List(ctx context.Context, orgID string, offset, limit int) (int64, []*model.Document, error)
	CountByStatus(ctx context.Context, orgID, status string) (int64, error)
	SumChunks(ctx context.Context, orgID string) (int64, error)
}

// OrgStore is the organization metadata interface.
type OrgStore interface {
	Create(ctx context.Context, org *model.Org) error
	Update(ctx context.Context, org *model.Org) error
	GetByURL(ctx context.Context, url string) (*model.Org, error)
	List(ctx context.Context, offset, limit int) (int64, []*model.Org, error)
}

// Factory bundles the metadata stores.
type Factory interface {
	Documents() DocumentStore
	Orgs() OrgStore
	Close() error
}
