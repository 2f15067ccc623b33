package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/llm"
	jsonutil "github.com/synaptiq/knowledged/pkg/utils/json"
)

// ChatStreamRequest is a conversation scoped to one organization. The last
// message's content is the question.
type ChatStreamRequest struct {
	OrgURL   string        `json:"org_url" binding:"required"`
	Messages []llm.Message `json:"messages" binding:"required"`
}

// streamDelta is the payload of one SSE message event.
type streamDelta struct {
	Delta string `json:"delta"`
}

// Chat answers a conversation as a server-sent event stream. Events:
// "sources" once up front, "message" per token, then a terminal "done" or
// "error". Errors before the first token are plain JSON responses; errors
// mid-stream arrive as an error event after the partial output, which
// remains valid.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, sources, err := h.chat.ChatStream(ctx, req.OrgURL, req.Messages)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeEvent(c, "sources", sources)

	for chunk := range stream {
		if chunk.Err != nil {
			logger.Warnw("generation stream failed",
				"org_url", req.OrgURL, "error", chunk.Err.Error())
			writeEvent(c, "error", gin.H{"message": chunk.Err.Error()})
			return
		}
		if chunk.Done {
			writeEvent(c, "done", gin.H{})
			return
		}
		writeEvent(c, "message", streamDelta{Delta: chunk.Delta})

		select {
		case <-ctx.Done():
			// Client went away; the provider stream is cancelled with it.
			return
		default:
		}
	}
}

// writeEvent writes one SSE frame and flushes it so tokens reach the
// client as they arrive.
func writeEvent(c *gin.Context, event string, data any) {
	payload, err := jsonutil.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, payload)
	c.Writer.Flush()
}

// Query answers a single question in one response, served from the result
// cache when possible.
func (h *Handler) Query(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.chat.Query(c.Request.Context(), req.OrgURL, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}
