package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/synaptiq/knowledged/pkg/errors"
)

// Search runs a raw similarity search and returns scored chunks. With no
// org_url it searches across all tenants; this endpoint exists for
// operator diagnostics, not for end-user traffic.
func (h *Handler) Search(c *gin.Context) {
	question := c.Query("q")
	if question == "" {
		respondError(c, errors.ErrMissingParam.WithMessage("q is required"))
		return
	}

	orgURL := c.Query("org_url")
	topK, _ := strconv.Atoi(c.DefaultQuery("k", "0"))

	chunks, err := h.retriever.Retrieve(c.Request.Context(), question, orgURL, topK)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"query":   question,
		"org_url": orgURL,
		"count":   len(chunks),
		"results": chunks,
	})
}

// Stats reports knowledge-base statistics: global by default, per-tenant
// when org_url is given.
func (h *Handler) Stats(c *gin.Context) {
	if orgURL := c.Query("org_url"); orgURL != "" {
		stats, err := h.documents.Stats(c.Request.Context(), orgURL)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, stats)
		return
	}

	stats, err := h.chat.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
