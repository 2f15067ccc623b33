package model

// ChatRequest is a question scoped to one organization.
type ChatRequest struct {
	OrgURL   string `json:"org_url" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// RetrievedChunk is one chunk returned by tenant-scoped similarity search,
// with the provenance needed to build citations.
type RetrievedChunk struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Page       string  `json:"page"`
	DocumentID string  `json:"document_id"`
	OrgURL     string  `json:"org_url"`
	Score      float32 `json:"score"`
}

// ChunkSource identifies where an answer's supporting chunk came from.
type ChunkSource struct {
	Filename string  `json:"filename"`
	Page     string  `json:"page"`
	Score    float32 `json:"score"`
}

// QueryResult is a complete non-streaming answer with its sources.
type QueryResult struct {
	Answer   string        `json:"answer"`
	Sources  []ChunkSource `json:"sources,omitempty"`
	Question string        `json:"question"`
	OrgURL   string        `json:"org_url"`
	Cached   bool          `json:"cached,omitempty"`
}

// IngestResult reports the outcome of a document ingestion.
type IngestResult struct {
	DocumentID      string `json:"document_id"`
	Filename        string `json:"filename"`
	OrgURL          string `json:"org_url"`
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
	Reingested      bool   `json:"reingested,omitempty"`
}

// OrgStats summarizes one tenant's footprint.
type OrgStats struct {
	OrgURL         string `json:"org_url"`
	DocumentCount  int64  `json:"document_count"`
	CompletedCount int64  `json:"completed_count"`
	FailedCount    int64  `json:"failed_count"`
	ChunkCount     int64  `json:"chunk_count"`
}
