package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"codepilot/internal/service/assistant"
	"codepilot/internal/service/metering"
	"codepilot/internal/worker"
)

const quotaExceededMessage = "Token limit exceeded. Please upgrade your plan."

// chatFailure maps a failed chat call onto a status code and error body.
func chatFailure(err error) (int, gin.H) {
	var quota *metering.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		return http.StatusTooManyRequests, gin.H{
			"message":     quotaExceededMessage,
			"tokensUsed":  quota.TokensUsed,
			"tokensLimit": quota.TokensLimit,
		}
	case errors.Is(err, metering.ErrUserNotFound):
		return http.StatusNotFound, gin.H{"message": "User not found"}
	case errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests, gin.H{"message": worker.ErrDispatcherBusy.Error()}
	case errors.Is(err, worker.ErrDispatcherClosed):
		return http.StatusServiceUnavailable, gin.H{"message": "server is shutting down"}
	default:
		return http.StatusInternalServerError, gin.H{"message": "Failed to process AI request"}
	}
}

func (h *Handler) bindChat(c *gin.Context) (string, metering.ChatRequest, bool) {
	var req metering.ChatRequest
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return "", req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return "", req, false
	}
	if req.ProjectID != nil {
		if _, err := h.workspace.OwnedProject(c.Request.Context(), userID, *req.ProjectID); err != nil {
			respondError(c, err, "Project not found", "Failed to process AI request")
			return "", req, false
		}
	}
	return userID, req, true
}

func (h *Handler) chatOnce(c *gin.Context) {
	userID, req, ok := h.bindChat(c)
	if !ok {
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), userID, req)
	if err != nil {
		_ = c.Error(err)
		status, body := chatFailure(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

// chatStream runs the same metered call as chatOnce and replays the answer as
// server-sent events: ack, one stream event per chunk, then done or error.
func (h *Handler) chatStream(c *gin.Context) {
	userID, req, ok := h.bindChat(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("ack", gin.H{
		"message":  req.Message,
		"language": assistant.ParseLanguage(req.Language),
	}); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.streamTimeout)
	defer cancel()
	res, err := h.chat.Chat(ctx, userID, req)
	if err != nil {
		_ = c.Error(err)
		status, body := chatFailure(err)
		body["status"] = status
		_ = sendEvent("error", body)
		return
	}

	reader := schema.StreamReaderFromArray(responseChunks(res.Text))
	defer reader.Close()
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = sendEvent("error", gin.H{"message": "Failed to process AI request"})
			return
		}
		if err := sendEvent("stream", gin.H{"content": chunk.Content}); err != nil {
			return
		}
	}
	_ = sendEvent("done", res)
}

// responseChunks splits text into line chunks whose concatenation is text.
func responseChunks(text string) []*schema.Message {
	parts := strings.SplitAfter(text, "\n")
	chunks := make([]*schema.Message, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(part, nil))
	}
	return chunks
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.workspace.ListAiSessions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Session not found", "Failed to fetch AI sessions")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) getSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	session, err := h.workspace.GetAiSession(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "Session not found", "Failed to fetch AI session")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) listSnippets(c *gin.Context) {
	lang := assistant.ParseLanguage(c.Param("language"))
	c.JSON(http.StatusOK, h.assistant.SnippetNames(lang))
}

func (h *Handler) getSnippet(c *gin.Context) {
	lang := assistant.ParseLanguage(c.Param("language"))
	snippet, _ := h.assistant.Snippet(lang, c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"snippet": snippet})
}
