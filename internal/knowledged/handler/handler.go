// Package handler provides the HTTP handlers for the knowledge service.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synaptiq/knowledged/internal/knowledged/biz"
	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/pkg/errors"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	chat      biz.ChatService
	ingestor  *biz.Ingestor
	documents *biz.DocumentService
	retriever *biz.Retriever
	orgs      store.OrgStore
}

// New creates the handler set.
func New(
	chat biz.ChatService,
	ingestor *biz.Ingestor,
	documents *biz.DocumentService,
	retriever *biz.Retriever,
	orgs store.OrgStore,
) *Handler {
	return &Handler{
		chat:      chat,
		ingestor:  ingestor,
		documents: documents,
		retriever: retriever,
		orgs:      orgs,
	}
}

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: data})
}

func respondError(c *gin.Context, err error) {
	errno := errors.FromError(err)
	c.JSON(errno.HTTPStatus(), ErrorResponse{Code: errno.Code, Message: errno.Msg})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    errors.ErrInvalidParam.Code,
		Message: err.Error(),
	})
}
