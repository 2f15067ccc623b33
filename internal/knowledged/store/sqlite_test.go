package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/synaptiq/knowledged/internal/model"
)

func setupFactory(t *testing.T) Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory, err := NewFactoryWithDB(db)
	require.NoError(t, err)
	return factory
}

func seedOrg(t *testing.T, factory Factory, url string) *model.Org {
	t.Helper()
	org := &model.Org{URL: url, DisplayName: "Test Org"}
	require.NoError(t, factory.Orgs().Create(context.Background(), org))
	require.NotEmpty(t, org.ID)
	return org
}

func TestOrgStore_GetByURL(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()

	seedOrg(t, factory, "acme")

	org, err := factory.Orgs().GetByURL(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Test Org", org.DisplayName)

	_, err = factory.Orgs().GetByURL(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestOrgStore_URLIsUnique(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()

	seedOrg(t, factory, "acme")
	err := factory.Orgs().Create(ctx, &model.Org{URL: "acme", DisplayName: "Duplicate"})
	assert.Error(t, err)
}

func TestDocumentStore_CreateAndGet(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	org := seedOrg(t, factory, "acme")

	doc := &model.Document{
		OrgID:    org.ID,
		Filename: "handbook.pdf",
		Status:   model.DocumentStatusUploaded,
	}
	require.NoError(t, factory.Documents().Create(ctx, doc))
	require.NotEmpty(t, doc.ID)

	got, err := factory.Documents().Get(ctx, org.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook.pdf", got.Filename)
	assert.Equal(t, model.DocumentStatusUploaded, got.Status)
}

func TestDocumentStore_GetByFilename(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	org := seedOrg(t, factory, "acme")

	// Missing filename is not an error; the ingest path uses nil to decide
	// between create and reuse.
	got, err := factory.Documents().GetByFilename(ctx, org.ID, "handbook.pdf")
	require.NoError(t, err)
	assert.Nil(t, got)

	doc := &model.Document{OrgID: org.ID, Filename: "handbook.pdf", Status: model.DocumentStatusCompleted}
	require.NoError(t, factory.Documents().Create(ctx, doc))

	got, err = factory.Documents().GetByFilename(ctx, org.ID, "handbook.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ID, got.ID)
}

func TestDocumentStore_FilenameUniquePerOrg(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	acme := seedOrg(t, factory, "acme")
	globex := seedOrg(t, factory, "globex")

	require.NoError(t, factory.Documents().Create(ctx, &model.Document{OrgID: acme.ID, Filename: "handbook.pdf"}))

	// Same filename in another org is allowed.
	require.NoError(t, factory.Documents().Create(ctx, &model.Document{OrgID: globex.ID, Filename: "handbook.pdf"}))

	// Same filename in the same org is rejected.
	err := factory.Documents().Create(ctx, &model.Document{OrgID: acme.ID, Filename: "handbook.pdf"})
	assert.Error(t, err)
}

func TestDocumentStore_ListScopedToOrg(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	acme := seedOrg(t, factory, "acme")
	globex := seedOrg(t, factory, "globex")

	require.NoError(t, factory.Documents().Create(ctx, &model.Document{OrgID: acme.ID, Filename: "a.pdf"}))
	require.NoError(t, factory.Documents().Create(ctx, &model.Document{OrgID: acme.ID, Filename: "b.pdf"}))
	require.NoError(t, factory.Documents().Create(ctx, &model.Document{OrgID: globex.ID, Filename: "c.pdf"}))

	count, docs, err := factory.Documents().List(ctx, acme.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	for _, doc := range docs {
		assert.Equal(t, acme.ID, doc.OrgID)
	}
}

func TestDocumentStore_Delete(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	acme := seedOrg(t, factory, "acme")
	globex := seedOrg(t, factory, "globex")

	doc := &model.Document{OrgID: acme.ID, Filename: "a.pdf"}
	require.NoError(t, factory.Documents().Create(ctx, doc))

	// Deleting through the wrong org must not touch the row.
	err := factory.Documents().Delete(ctx, globex.ID, doc.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, factory.Documents().Delete(ctx, acme.ID, doc.ID))
	_, err = factory.Documents().Get(ctx, acme.ID, doc.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDocumentStore_StatsQueries(t *testing.T) {
	factory := setupFactory(t)
	ctx := context.Background()
	org := seedOrg(t, factory, "acme")

	require.NoError(t, factory.Documents().Create(ctx, &model.Document{
		OrgID: org.ID, Filename: "a.pdf", Status: model.DocumentStatusCompleted, ChunksProcessed: 12,
	}))
	require.NoError(t, factory.Documents().Create(ctx, &model.Document{
		OrgID: org.ID, Filename: "b.pdf", Status: model.DocumentStatusFailed,
	}))

	completed, err := factory.Documents().CountByStatus(ctx, org.ID, model.DocumentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)

	total, err := factory.Documents().CountByStatus(ctx, org.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	chunks, err := factory.Documents().SumChunks(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), chunks)
}

func TestTenantFilter(t *testing.T) {
	assert.Equal(t, `org_url == "acme"`, TenantFilter("acme"))
	// Quoting must neutralize filter injection through the slug.
	assert.Equal(t, `org_url == "a\" or 1 == 1"`, TenantFilter(`a" or 1 == 1`))
}

func TestDocumentFilter(t *testing.T) {
	assert.Equal(t, `org_url == "acme" and document_id == "01ABC"`, DocumentFilter("acme", "01ABC"))
}
