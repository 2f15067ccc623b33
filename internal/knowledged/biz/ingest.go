package biz

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/internal/pkg/loader"
	"github.com/synaptiq/knowledged/internal/pkg/textutil"
	"github.com/synaptiq/knowledged/pkg/errors"
	"github.com/synaptiq/knowledged/pkg/llm"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultEmbedBatch   = 32

	// errorMessageLimit bounds what gets written to the documents table.
	errorMessageLimit = 500
)

// IngestorConfig configures the ingestion pipeline.
type IngestorConfig struct {
	// Collection is the vector collection chunks are written to.
	Collection string
	// ChunkSize is the chunk length in characters.
	ChunkSize int
	// ChunkOverlap is the shared character count between consecutive chunks.
	ChunkOverlap int
	// EmbeddingDim is the vector dimension of the collection.
	EmbeddingDim int
	// EmbedBatchSize is how many chunks go into one embedding request.
	EmbedBatchSize int
	// DataDir is where uploaded files live when a document has no
	// explicit storage path.
	DataDir string
}

// Complete fills in defaults and clamps the overlap below the chunk size.
func (c *IngestorConfig) Complete() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = defaultChunkOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = defaultEmbedBatch
	}
}

// Ingestor runs the upload-to-vector-store pipeline for one document at a
// time per (org, filename) pair. Concurrent re-ingestion of the same file
// is serialized so chunk writes stay an append-only sequence.
type Ingestor struct {
	vectors   store.VectorStore
	documents store.DocumentStore
	orgs      store.OrgStore
	embedder  llm.EmbeddingProvider
	pool      *ants.Pool
	config    *IngestorConfig

	// load extracts page sections from the stored file.
	load func(path string) ([]loader.PageSection, error)

	mu    sync.Mutex
	locks map[string]*docLock
}

// docLock is a reference-counted mutex for one (org, filename) pair. The
// count lets the map entry be evicted once no ingestion holds or awaits it.
type docLock struct {
	sync.Mutex
	refs int
}

// NewIngestor creates the ingestion pipeline. pool may be nil, in which
// case embedding batches run sequentially.
func NewIngestor(
	vectors store.VectorStore,
	factory store.Factory,
	embedder llm.EmbeddingProvider,
	pool *ants.Pool,
	config *IngestorConfig,
) *Ingestor {
	config.Complete()
	return &Ingestor{
		vectors:   vectors,
		documents: factory.Documents(),
		orgs:      factory.Orgs(),
		embedder:  embedder,
		pool:      pool,
		config:    config,
		load:      loader.LoadPDF,
		locks:     make(map[string]*docLock),
	}
}

// acquireLock takes the per-(org, filename) mutex, creating it on first use.
func (i *Ingestor) acquireLock(key string) *docLock {
	i.mu.Lock()
	lock, ok := i.locks[key]
	if !ok {
		lock = &docLock{}
		i.locks[key] = lock
	}
	lock.refs++
	i.mu.Unlock()

	lock.Lock()
	return lock
}

// releaseLock unlocks and evicts the entry once nothing else waits on it.
func (i *Ingestor) releaseLock(key string, lock *docLock) {
	lock.Unlock()

	i.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(i.locks, key)
	}
	i.mu.Unlock()
}

// Ingest processes a registered document end to end: load, chunk, embed,
// replace the document's chunks in the vector store, and record the outcome
// on the document row. Any failure after the processing transition marks the
// document failed with a truncated error message.
func (i *Ingestor) Ingest(ctx context.Context, orgURL, filename string) (*model.IngestResult, error) {
	lockKey := orgURL + "/" + filename
	lock := i.acquireLock(lockKey)
	defer i.releaseLock(lockKey, lock)

	org, err := i.orgs.GetByURL(ctx, orgURL)
	if err != nil {
		// The chunks still carry the org_url slug for filtering, so
		// ingestion proceeds without the org profile.
		logger.Warnw("organization not found, ingesting untagged",
			"org_url", orgURL, "error", err.Error())
		org = &model.Org{URL: orgURL}
	}

	doc, err := i.documents.GetByFilename(ctx, org.ID, filename)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if doc == nil {
		return nil, errors.ErrDocumentNotFound.WithMessagef("document %q is not registered for organization %q", filename, orgURL)
	}

	doc.Status = model.DocumentStatusProcessing
	doc.ErrorMessage = ""
	if err := i.documents.Update(ctx, doc); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	reingested := doc.ChunksProcessed > 0

	count, err := i.process(ctx, org, doc)
	if err != nil {
		doc.Status = model.DocumentStatusFailed
		doc.ErrorMessage = textutil.TruncateString(err.Error(), errorMessageLimit)
		if uerr := i.documents.Update(ctx, doc); uerr != nil {
			logger.Errorw("failed to record ingestion failure",
				"document_id", doc.ID, "error", uerr.Error())
		}
		return nil, err
	}

	doc.Status = model.DocumentStatusCompleted
	doc.ChunksProcessed = count
	if err := i.documents.Update(ctx, doc); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	logger.Infow("document ingested",
		"org_url", orgURL,
		"filename", filename,
		"document_id", doc.ID,
		"chunks", count,
		"reingested", reingested,
	)

	return &model.IngestResult{
		DocumentID:      doc.ID,
		Filename:        doc.Filename,
		OrgURL:          orgURL,
		Status:          doc.Status,
		ChunksProcessed: count,
		Reingested:      reingested,
	}, nil
}

// process runs the fallible middle of the pipeline and returns the chunk
// count written.
func (i *Ingestor) process(ctx context.Context, org *model.Org, doc *model.Document) (int, error) {
	path := doc.StoragePath
	if path == "" {
		path = filepath.Join(i.config.DataDir, org.URL, doc.Filename)
	}

	sections, err := i.load(path)
	if err != nil {
		return 0, errors.ErrPipeline.WithCause(err)
	}
	if len(sections) == 0 {
		return 0, errors.ErrNoContent.WithMessage("no content found in PDF")
	}

	chunks := i.buildChunks(org, doc, sections)
	if len(chunks) == 0 {
		return 0, errors.ErrNoContent.WithMessage("no content found in PDF")
	}

	if err := i.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}

	// Replace, never append: prior chunks for this document go first so a
	// re-ingest cannot double-count sources.
	filter := store.DocumentFilter(org.URL, doc.ID)
	if err := i.vectors.DeleteByFilter(ctx, i.config.Collection, filter); err != nil {
		return 0, errors.ErrVectorStore.WithCause(err)
	}

	if _, err := i.vectors.Insert(ctx, i.config.Collection, chunks); err != nil {
		return 0, errors.ErrVectorStore.WithCause(err)
	}

	return len(chunks), nil
}

// buildChunks splits each page section into overlapping chunks, re-asserting
// full provenance on every derived chunk. Splitting must never produce a
// fragment that lost its page or tenant tag.
func (i *Ingestor) buildChunks(org *model.Org, doc *model.Document, sections []loader.PageSection) []*store.Chunk {
	var chunks []*store.Chunk
	for _, section := range sections {
		page := section.Page
		if page == "" {
			page = model.PageUnknown
		}
		for _, content := range textutil.SplitIntoChunks(section.Content, i.config.ChunkSize, i.config.ChunkOverlap) {
			chunks = append(chunks, &store.Chunk{
				DocumentID: doc.ID,
				Source:     doc.Filename,
				Page:       page,
				OrgURL:     org.URL,
				OrgID:      org.ID,
				Content:    content,
			})
		}
	}
	return chunks
}

// embedChunks fills in chunk embeddings in batches. Batches fan out on the
// worker pool when one is available; results land by batch index so chunk
// order is preserved.
func (i *Ingestor) embedChunks(ctx context.Context, chunks []*store.Chunk) error {
	batchSize := i.config.EmbedBatchSize
	type batch struct {
		start int
		texts []string
	}

	var batches []batch
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Content)
		}
		batches = append(batches, batch{start: start, texts: texts})
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(b batch) {
		defer wg.Done()
		embeddings, err := i.embedder.Embed(ctx, b.texts)
		if err != nil {
			errOnce.Do(func() { firstErr = errors.ErrEmbedding.WithCause(err) })
			return
		}
		if len(embeddings) != len(b.texts) {
			errOnce.Do(func() {
				firstErr = errors.ErrEmbedding.WithMessagef("got %d embeddings for %d chunks", len(embeddings), len(b.texts))
			})
			return
		}
		for idx, embedding := range embeddings {
			chunks[b.start+idx].Embedding = embedding
		}
	}

	for _, b := range batches {
		b := b
		wg.Add(1)
		if i.pool != nil {
			if err := i.pool.Submit(func() { run(b) }); err != nil {
				// Pool saturated or closed, run inline rather than drop.
				run(b)
			}
		} else {
			run(b)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	for idx, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return errors.ErrEmbedding.WithMessage(fmt.Sprintf("chunk %d has no embedding", idx))
		}
	}
	return nil
}
