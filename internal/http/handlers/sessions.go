package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/voxrelay/internal/core/session"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

type SessionsHandler struct {
	Svc    *session.Service
	Scheme string
	Host   string
}

func NewSessionsHandler(svc *session.Service, scheme, host string) *SessionsHandler {
	return &SessionsHandler{Svc: svc, Scheme: scheme, Host: host}
}

func (h *SessionsHandler) wsURL(id string) string {
	scheme := "ws"
	if h.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + h.Host + "/v1/stream?sess=" + id
}

func (h *SessionsHandler) Create(c *gin.Context) {
	var req types.CreateSessionReq
	// An empty body is a session with defaults.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
			return
		}
	}
	conv, err := h.Svc.Create(c.Request.Context(), req)
	if err != nil {
		slog.Error("http: create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}
	c.JSON(http.StatusOK, types.CreateSessionResp{
		SessionID: conv.ID,
		WSURL:     h.wsURL(conv.ID),
	})
}

func (h *SessionsHandler) Summary(c *gin.Context) {
	id := c.Param("id")
	sum, ok := h.Svc.Summary(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *SessionsHandler) Delete(c *gin.Context) {
	if !h.Svc.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}
