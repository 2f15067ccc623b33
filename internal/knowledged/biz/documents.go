package biz

import (
	"context"
	"os"

	"github.com/kart-io/logger"

	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/errors"
)

// RegisterUploadRequest describes a newly uploaded file.
type RegisterUploadRequest struct {
	OrgURL       string
	Filename     string
	OriginalName string
	SizeBytes    int64
	MimeType     string
	StoragePath  string
}

// DocumentService manages document lifecycle outside the ingestion
// pipeline itself: registration on upload, listing, and deletion with
// cascading chunk removal.
type DocumentService struct {
	vectors    store.VectorStore
	documents  store.DocumentStore
	orgs       store.OrgStore
	collection string
}

// NewDocumentService creates the document lifecycle service.
func NewDocumentService(vectors store.VectorStore, factory store.Factory, collection string) *DocumentService {
	return &DocumentService{
		vectors:    vectors,
		documents:  factory.Documents(),
		orgs:       factory.Orgs(),
		collection: collection,
	}
}

// Register records an uploaded file for an organization. Uploading a
// filename that already exists reuses the existing row, resetting it to
// uploaded so the next ingestion replaces the old chunks.
func (s *DocumentService) Register(ctx context.Context, req *RegisterUploadRequest) (*model.Document, error) {
	org, err := s.orgs.GetByURL(ctx, req.OrgURL)
	if err != nil {
		return nil, errors.ErrOrgNotFound.WithMessagef("organization %q not found", req.OrgURL)
	}

	doc, err := s.documents.GetByFilename(ctx, org.ID, req.Filename)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	if doc != nil {
		doc.OriginalName = req.OriginalName
		doc.SizeBytes = req.SizeBytes
		doc.MimeType = req.MimeType
		doc.StoragePath = req.StoragePath
		doc.Status = model.DocumentStatusUploaded
		doc.ErrorMessage = ""
		if err := s.documents.Update(ctx, doc); err != nil {
			return nil, errors.ErrDatabase.WithCause(err)
		}
		logger.Infow("document re-registered", "org_url", req.OrgURL, "filename", req.Filename, "document_id", doc.ID)
		return doc, nil
	}

	doc = &model.Document{
		OrgID:        org.ID,
		Filename:     req.Filename,
		OriginalName: req.OriginalName,
		SizeBytes:    req.SizeBytes,
		MimeType:     req.MimeType,
		StoragePath:  req.StoragePath,
		Status:       model.DocumentStatusUploaded,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	logger.Infow("document registered", "org_url", req.OrgURL, "filename", req.Filename, "document_id", doc.ID)
	return doc, nil
}

// List returns an organization's documents, newest first.
func (s *DocumentService) List(ctx context.Context, orgURL string, offset, limit int) (*model.DocumentList, error) {
	org, err := s.orgs.GetByURL(ctx, orgURL)
	if err != nil {
		return nil, errors.ErrOrgNotFound.WithMessagef("organization %q not found", orgURL)
	}

	total, docs, err := s.documents.List(ctx, org.ID, offset, limit)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &model.DocumentList{TotalCount: total, Items: docs}, nil
}

// Delete removes a document and everything derived from it. Vector chunks
// go first: if that fails the row stays, so a retry still sees the
// document and no chunk can outlive its metadata. The stored file and row
// are removed only after the chunks are gone.
func (s *DocumentService) Delete(ctx context.Context, orgURL, documentID string) error {
	org, err := s.orgs.GetByURL(ctx, orgURL)
	if err != nil {
		return errors.ErrOrgNotFound.WithMessagef("organization %q not found", orgURL)
	}

	doc, err := s.documents.Get(ctx, org.ID, documentID)
	if err != nil {
		return errors.ErrDocumentNotFound.WithMessagef("document %q not found", documentID)
	}

	filter := store.DocumentFilter(org.URL, doc.ID)
	if err := s.vectors.DeleteByFilter(ctx, s.collection, filter); err != nil {
		return errors.ErrVectorStore.WithCause(err)
	}

	if doc.StoragePath != "" {
		if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
			// The chunks are already gone; losing the blob only wastes
			// disk, so log and keep going.
			logger.Warnw("failed to remove stored file",
				"path", doc.StoragePath, "error", err.Error())
		}
	}

	if err := s.documents.Delete(ctx, org.ID, doc.ID); err != nil {
		return errors.ErrDatabase.WithCause(err)
	}

	logger.Infow("document deleted", "org_url", orgURL, "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

// Stats summarizes one organization's knowledge base.
func (s *DocumentService) Stats(ctx context.Context, orgURL string) (*model.OrgStats, error) {
	org, err := s.orgs.GetByURL(ctx, orgURL)
	if err != nil {
		return nil, errors.ErrOrgNotFound.WithMessagef("organization %q not found", orgURL)
	}

	total, err := s.documents.CountByStatus(ctx, org.ID, "")
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	completed, err := s.documents.CountByStatus(ctx, org.ID, model.DocumentStatusCompleted)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	failed, err := s.documents.CountByStatus(ctx, org.ID, model.DocumentStatusFailed)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	chunks, err := s.documents.SumChunks(ctx, org.ID)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	return &model.OrgStats{
		OrgURL:         orgURL,
		DocumentCount:  total,
		CompletedCount: completed,
		FailedCount:    failed,
		ChunkCount:     chunks,
	}, nil
}
