package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/synaptiq/knowledged/internal/knowledged/biz"
	"github.com/synaptiq/knowledged/pkg/errors"
)

// IngestRequest triggers processing of a registered document.
type IngestRequest struct {
	OrgURL   string `json:"org_url" binding:"required"`
	Filename string `json:"filename" binding:"required"`
}

// Ingest runs the ingestion pipeline for one document.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), req.OrgURL, req.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// RegisterDocumentRequest records an uploaded file.
type RegisterDocumentRequest struct {
	OrgURL       string `json:"org_url" binding:"required"`
	Filename     string `json:"filename" binding:"required"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type"`
	StoragePath  string `json:"storage_path"`
}

// RegisterDocument registers an upload, reusing the existing row when the
// filename was uploaded before.
func (h *Handler) RegisterDocument(c *gin.Context) {
	var req RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	doc, err := h.documents.Register(c.Request.Context(), &biz.RegisterUploadRequest{
		OrgURL:       req.OrgURL,
		Filename:     req.Filename,
		OriginalName: req.OriginalName,
		SizeBytes:    req.SizeBytes,
		MimeType:     req.MimeType,
		StoragePath:  req.StoragePath,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, doc)
}

// ListDocuments returns an organization's documents, newest first.
func (h *Handler) ListDocuments(c *gin.Context) {
	orgURL := c.Query("org_url")
	if orgURL == "" {
		respondError(c, errors.ErrMissingParam.WithMessage("org_url is required"))
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.documents.List(c.Request.Context(), orgURL, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// DeleteDocument removes a document, its vector chunks, and its stored file.
func (h *Handler) DeleteDocument(c *gin.Context) {
	orgURL := c.Query("org_url")
	documentID := c.Query("document_id")
	if orgURL == "" || documentID == "" {
		respondError(c, errors.ErrMissingParam.WithMessage("org_url and document_id are required"))
		return
	}

	if err := h.documents.Delete(c.Request.Context(), orgURL, documentID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": documentID})
}
