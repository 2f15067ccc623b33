package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/errors"
)

// GetOrg returns one organization's profile by URL slug.
func (h *Handler) GetOrg(c *gin.Context) {
	url := c.Param("url")

	org, err := h.orgs.GetByURL(c.Request.Context(), url)
	if err != nil {
		respondError(c, errors.ErrOrgNotFound.WithMessagef("organization %q not found", url))
		return
	}
	respondOK(c, org)
}

// CreateOrgRequest registers a tenant.
type CreateOrgRequest struct {
	URL               string `json:"url" binding:"required"`
	DisplayName       string `json:"display_name" binding:"required"`
	Industry          string `json:"industry"`
	CustomerSegments  string `json:"customer_segments"`
	LLMCompanyContext string `json:"llm_company_context"`
	IconURL           string `json:"icon_url"`
}

// CreateOrg registers a new organization. The URL slug must be unique; it
// is the sole external tenant identifier.
func (h *Handler) CreateOrg(c *gin.Context) {
	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	org := &model.Org{
		URL:               req.URL,
		DisplayName:       req.DisplayName,
		Industry:          req.Industry,
		CustomerSegments:  req.CustomerSegments,
		LLMCompanyContext: req.LLMCompanyContext,
		IconURL:           req.IconURL,
	}
	if err := h.orgs.Create(c.Request.Context(), org); err != nil {
		respondError(c, errors.ErrDatabase.WithCause(err))
		return
	}
	respondOK(c, org)
}
