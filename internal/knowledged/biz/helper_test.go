package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/llm"
)

func setupFactory(t *testing.T) store.Factory {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory, err := store.NewFactoryWithDB(db)
	require.NoError(t, err)
	return factory
}

func seedOrg(t *testing.T, factory store.Factory, url string) *model.Org {
	t.Helper()
	org := &model.Org{
		URL:         url,
		DisplayName: strings.ToUpper(url),
		Industry:    "software",
	}
	require.NoError(t, factory.Orgs().Create(context.Background(), org))
	return org
}

func seedDocument(t *testing.T, factory store.Factory, orgID, filename string) *model.Document {
	t.Helper()
	doc := &model.Document{
		OrgID:    orgID,
		Filename: filename,
		Status:   model.DocumentStatusUploaded,
	}
	require.NoError(t, factory.Documents().Create(context.Background(), doc))
	return doc
}

// fakeVectorStore records inserts and delete filters and serves canned
// search results.
type fakeVectorStore struct {
	mu            sync.Mutex
	inserted      []*store.Chunk
	deleteFilters []string
	searchFilters []string
	searchResults []*model.RetrievedChunk
	searchErr     error
	insertErr     error
	rows          int64
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, config *store.CollectionConfig) error {
	return nil
}

func (f *fakeVectorStore) Insert(ctx context.Context, collection string, chunks []*store.Chunk) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, chunks...)
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("%d", len(f.inserted)-len(chunks)+i)
	}
	return ids, nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection string, embedding []float32, filter string, topK int) ([]*model.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchFilters = append(f.searchFilters, filter)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if topK < len(f.searchResults) {
		return f.searchResults[:topK], nil
	}
	return f.searchResults, nil
}

func (f *fakeVectorStore) DeleteByFilter(ctx context.Context, collection, filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFilters = append(f.deleteFilters, filter)
	return nil
}

func (f *fakeVectorStore) RowCount(ctx context.Context, collection string) (int64, error) {
	return f.rows, nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

// fakeEmbedder returns fixed-dimension vectors and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Name() string { return "fake-embed" }

var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)

// fakeChat captures the prompts it was called with and streams canned
// tokens.
type fakeChat struct {
	mu            sync.Mutex
	generateCalls int
	streamCalls   int
	lastPrompt    string
	lastSystem    string
	answer        string
	tokens        []string
	err           error
}

func (f *fakeChat) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.GenerateResponse, error) {
	f.mu.Lock()
	f.generateCalls++
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResponse{Content: f.answer}, nil
}

func (f *fakeChat) GenerateStream(ctx context.Context, prompt, systemPrompt string) (<-chan llm.StreamChunk, error) {
	f.mu.Lock()
	f.streamCalls++
	f.lastPrompt = prompt
	f.lastSystem = systemPrompt
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, token := range f.tokens {
			select {
			case ch <- llm.StreamChunk{Delta: token}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- llm.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

var _ llm.ChatProvider = (*fakeChat)(nil)
