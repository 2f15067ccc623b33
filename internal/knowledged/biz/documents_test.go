package biz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptiq/knowledged/internal/model"
	kerrors "github.com/synaptiq/knowledged/pkg/errors"
)

func TestRegisterNewDocument(t *testing.T) {
	factory := setupFactory(t)
	seedOrg(t, factory, "acme")
	svc := NewDocumentService(&fakeVectorStore{}, factory, "chunks")

	doc, err := svc.Register(context.Background(), &RegisterUploadRequest{
		OrgURL:       "acme",
		Filename:     "guide.pdf",
		OriginalName: "Product Guide.pdf",
		SizeBytes:    2048,
		MimeType:     "application/pdf",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.DocumentStatusUploaded, doc.Status)
	assert.Equal(t, "Product Guide.pdf", doc.OriginalName)
}

func TestRegisterUnknownOrg(t *testing.T) {
	factory := setupFactory(t)
	svc := NewDocumentService(&fakeVectorStore{}, factory, "chunks")

	_, err := svc.Register(context.Background(), &RegisterUploadRequest{OrgURL: "ghost", Filename: "f.pdf"})
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrOrgNotFound.Code))
}

func TestRegisterSameFilenameReusesRow(t *testing.T) {
	factory := setupFactory(t)
	org := seedOrg(t, factory, "acme")
	svc := NewDocumentService(&fakeVectorStore{}, factory, "chunks")
	ctx := context.Background()

	first, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "guide.pdf"})
	require.NoError(t, err)

	// Simulate a completed ingestion, then re-upload.
	first.Status = model.DocumentStatusCompleted
	first.ChunksProcessed = 12
	require.NoError(t, factory.Documents().Update(ctx, first))

	second, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "guide.pdf", SizeBytes: 4096})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.DocumentStatusUploaded, second.Status)
	assert.Equal(t, int64(4096), second.SizeBytes)

	total, _, err := factory.Documents().List(ctx, org.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestDeleteDocumentCascades(t *testing.T) {
	factory := setupFactory(t)
	org := seedOrg(t, factory, "acme")
	vectors := &fakeVectorStore{}
	svc := NewDocumentService(vectors, factory, "chunks")
	ctx := context.Background()

	blob := filepath.Join(t.TempDir(), "guide.pdf")
	require.NoError(t, os.WriteFile(blob, []byte("%PDF-fake"), 0o600))

	doc, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "guide.pdf", StoragePath: blob})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "acme", doc.ID))

	// Chunks went first, scoped to this document.
	require.Len(t, vectors.deleteFilters, 1)
	assert.Contains(t, vectors.deleteFilters[0], `org_url == "acme"`)
	assert.Contains(t, vectors.deleteFilters[0], doc.ID)

	_, err = os.Stat(blob)
	assert.True(t, os.IsNotExist(err))

	_, err = factory.Documents().Get(ctx, org.ID, doc.ID)
	assert.Error(t, err)
}

func TestDeleteThenRegisterSameFilename(t *testing.T) {
	factory := setupFactory(t)
	seedOrg(t, factory, "acme")
	svc := NewDocumentService(&fakeVectorStore{}, factory, "chunks")
	ctx := context.Background()

	first, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "guide.pdf"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "acme", first.ID))

	// The deleted row must not hold the (org, filename) unique index
	// against a fresh upload of the same filename.
	second, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "guide.pdf"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.DocumentStatusUploaded, second.Status)
}

func TestDeleteDocumentCrossOrgDenied(t *testing.T) {
	factory := setupFactory(t)
	seedOrg(t, factory, "acme")
	seedOrg(t, factory, "globex")
	vectors := &fakeVectorStore{}
	svc := NewDocumentService(vectors, factory, "chunks")
	ctx := context.Background()

	doc, err := svc.Register(ctx, &RegisterUploadRequest{OrgURL: "acme", Filename: "secret.pdf"})
	require.NoError(t, err)

	err = svc.Delete(ctx, "globex", doc.ID)
	require.Error(t, err)
	assert.True(t, kerrors.IsCode(err, kerrors.ErrDocumentNotFound.Code))
	assert.Empty(t, vectors.deleteFilters)
}

func TestOrgStats(t *testing.T) {
	factory := setupFactory(t)
	org := seedOrg(t, factory, "acme")
	svc := NewDocumentService(&fakeVectorStore{}, factory, "chunks")
	ctx := context.Background()

	completed := seedDocument(t, factory, org.ID, "a.pdf")
	completed.Status = model.DocumentStatusCompleted
	completed.ChunksProcessed = 7
	require.NoError(t, factory.Documents().Update(ctx, completed))

	failed := seedDocument(t, factory, org.ID, "b.pdf")
	failed.Status = model.DocumentStatusFailed
	require.NoError(t, factory.Documents().Update(ctx, failed))

	stats, err := svc.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DocumentCount)
	assert.Equal(t, int64(1), stats.CompletedCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Equal(t, int64(7), stats.ChunkCount)
}
