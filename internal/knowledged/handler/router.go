package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/synaptiq/knowledged/internal/knowledged/middleware"
)

// InstallRoutes mounts the middleware chain and the API on the engine.
func (h *Handler) InstallRoutes(engine *gin.Engine) {
	engine.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery())

	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		v1.POST("/ingest", h.Ingest)

		v1.POST("/chat", h.Chat)
		v1.POST("/chat/query", h.Query)

		v1.POST("/documents", h.RegisterDocument)
		v1.GET("/documents", h.ListDocuments)
		v1.DELETE("/documents", h.DeleteDocument)

		v1.POST("/orgs", h.CreateOrg)
		v1.GET("/orgs/:url", h.GetOrg)

		v1.GET("/search", h.Search)
		v1.GET("/stats", h.Stats)
	}
}
