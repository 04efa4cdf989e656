package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/voxrelay/internal/core/prompt"
	"github.com/steveyiyo/voxrelay/internal/core/session"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// MessagesHandler serves a conversation's history and its text prompts.
type MessagesHandler struct {
	Svc *session.Service
}

func NewMessagesHandler(svc *session.Service) *MessagesHandler {
	return &MessagesHandler{Svc: svc}
}

func (h *MessagesHandler) conversation(c *gin.Context) (*session.Conversation, bool) {
	conv, ok := h.Svc.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	}
	return conv, ok
}

func (h *MessagesHandler) List(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.MessagesResp{Messages: conv.Messages()})
}

func (h *MessagesHandler) Clear(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	if err := conv.ClearMessages(c.Request.Context()); err != nil {
		slog.Error("http: clear history", "session_id", conv.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessagesHandler) DeleteOne(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	found, err := conv.DeleteMessage(c.Request.Context(), c.Param("msgID"))
	if err != nil {
		slog.Error("http: delete message", "session_id", conv.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Prompt answers with the assistant message. A failed generation is still a
// 200: the message carries the fallback text.
func (h *MessagesHandler) Prompt(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	var req types.PromptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	msg, err := conv.Prompt(c.Request.Context(), req.Mode, req.Text)
	switch {
	case errors.Is(err, prompt.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "busy"})
	case errors.Is(err, prompt.ErrEmptyPrompt):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_prompt"})
	case errors.Is(err, prompt.ErrUnknownMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_mode"})
	case errors.Is(err, prompt.ErrNoGenerator):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "api_key_missing"})
	default:
		c.JSON(http.StatusOK, msg)
	}
}
