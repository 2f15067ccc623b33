package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/internal/pkg/loader"
	kerrors "github.com/synaptiq/knowledged/pkg/errors"
)

func newTestIngestor(t *testing.T, vectors *fakeVectorStore, embedder *fakeEmbedder, sections []loader.PageSection, loadErr error) (*Ingestor, store.Factory) {
	t.Helper()
	factory := setupFactory(t)

	ingestor := NewIngestor(vectors, factory, embedder, nil, &IngestorConfig{
		Collection:   "chunks",
		ChunkSize:    1000,
		ChunkOverlap: 200,
	})
	ingestor.load = func(path string) ([]loader.PageSection, error) {
		return sections, loadErr
	}
	return ingestor, factory
}

func TestIngestUnregisteredDocument(t *testing.T) {
	ingestor, factory := newTestIngestor(t, &fakeVectorStore{}, &fakeEmbedder{}, nil, nil)
	seedOrg(t, factory, "acme")

	_, err := ingestor.Ingest(context.Background(), "acme", "missing.pdf")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrDocumentNotFound.Code))
}

func TestIngestTwoPageDocument(t *testing.T) {
	// 3000 characters per page at size 1000 / overlap 200 gives windows
	// starting at 0, 800, 1600, 2400: four chunks per page.
	pageText := strings.Repeat("k", 3000)
	sections := []loader.PageSection{
		{Page: "1", Content: pageText},
		{Page: "2", Content: pageText},
	}

	vectors := &fakeVectorStore{}
	ingestor, factory := newTestIngestor(t, vectors, &fakeEmbedder{}, sections, nil)
	org := seedOrg(t, factory, "acme")
	seedDocument(t, factory, org.ID, "guide.pdf")

	result, err := ingestor.Ingest(context.Background(), "acme", "guide.pdf")
	require.NoError(t, err)

	assert.Equal(t, 8, result.ChunksProcessed)
	assert.Equal(t, model.DocumentStatusCompleted, result.Status)
	assert.False(t, result.Reingested)

	require.Len(t, vectors.inserted, 8)
	pages := map[string]int{}
	for _, chunk := range vectors.inserted {
		assert.Equal(t, "acme", chunk.OrgURL)
		assert.Equal(t, org.ID, chunk.OrgID)
		assert.Equal(t, "guide.pdf", chunk.Source)
		assert.NotEmpty(t, chunk.Embedding)
		pages[chunk.Page]++
	}
	assert.Equal(t, map[string]int{"1": 4, "2": 4}, pages)

	// Prior chunks for this document are cleared before the insert.
	require.Len(t, vectors.deleteFilters, 1)
	assert.Contains(t, vectors.deleteFilters[0], `org_url == "acme"`)
	assert.Contains(t, vectors.deleteFilters[0], "document_id ==")

	doc, err := factory.Documents().Get(context.Background(), org.ID, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusCompleted, doc.Status)
	assert.Equal(t, 8, doc.ChunksProcessed)
}

func TestIngestLockMapDoesNotGrow(t *testing.T) {
	sections := []loader.PageSection{{Page: "1", Content: "widget assembly instructions"}}
	ingestor, factory := newTestIngestor(t, &fakeVectorStore{}, &fakeEmbedder{}, sections, nil)
	org := seedOrg(t, factory, "acme")

	for _, filename := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		seedDocument(t, factory, org.ID, filename)
		_, err := ingestor.Ingest(context.Background(), "acme", filename)
		require.NoError(t, err)
	}

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	assert.Empty(t, ingestor.locks)
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	vectors := &fakeVectorStore{}
	ingestor, factory := newTestIngestor(t, vectors, &fakeEmbedder{}, nil, nil)
	org := seedOrg(t, factory, "acme")
	seedDocument(t, factory, org.ID, "empty.pdf")

	_, err := ingestor.Ingest(context.Background(), "acme", "empty.pdf")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrNoContent.Code))

	doc, derr := factory.Documents().GetByFilename(context.Background(), org.ID, "empty.pdf")
	require.NoError(t, derr)
	require.NotNil(t, doc)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "no content found in PDF")
	assert.Empty(t, vectors.inserted)
}

func TestIngestEmbeddingFailureMarksFailed(t *testing.T) {
	sections := []loader.PageSection{{Page: "1", Content: strings.Repeat("x", 500)}}
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	vectors := &fakeVectorStore{}
	ingestor, factory := newTestIngestor(t, vectors, embedder, sections, nil)
	org := seedOrg(t, factory, "acme")
	seedDocument(t, factory, org.ID, "doc.pdf")

	_, err := ingestor.Ingest(context.Background(), "acme", "doc.pdf")
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrEmbedding.Code))

	doc, derr := factory.Documents().GetByFilename(context.Background(), org.ID, "doc.pdf")
	require.NoError(t, derr)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedding service down")
	assert.Empty(t, vectors.inserted)
}

func TestIngestPageFallsBackToUnknown(t *testing.T) {
	sections := []loader.PageSection{{Page: "", Content: "short text"}}
	vectors := &fakeVectorStore{}
	ingestor, factory := newTestIngestor(t, vectors, &fakeEmbedder{}, sections, nil)
	org := seedOrg(t, factory, "acme")
	seedDocument(t, factory, org.ID, "doc.pdf")

	_, err := ingestor.Ingest(context.Background(), "acme", "doc.pdf")
	require.NoError(t, err)
	require.Len(t, vectors.inserted, 1)
	assert.Equal(t, model.PageUnknown, vectors.inserted[0].Page)
}

func TestReingestReportsReingested(t *testing.T) {
	sections := []loader.PageSection{{Page: "1", Content: "some content worth indexing"}}
	vectors := &fakeVectorStore{}
	ingestor, factory := newTestIngestor(t, vectors, &fakeEmbedder{}, sections, nil)
	org := seedOrg(t, factory, "acme")
	seedDocument(t, factory, org.ID, "doc.pdf")

	first, err := ingestor.Ingest(context.Background(), "acme", "doc.pdf")
	require.NoError(t, err)
	assert.False(t, first.Reingested)

	second, err := ingestor.Ingest(context.Background(), "acme", "doc.pdf")
	require.NoError(t, err)
	assert.True(t, second.Reingested)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	// Each run clears the document's prior chunks first.
	assert.Len(t, vectors.deleteFilters, 2)
}
