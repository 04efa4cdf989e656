package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/session"
	"github.com/steveyiyo/voxrelay/pkg/types"
	"github.com/steveyiyo/voxrelay/pkg/ws"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client text message types.
const (
	msgStart = "start"
	msgStop  = "stop"
	msgMic   = "mic"
)

type StreamHandler struct {
	Hub      *ws.Hub
	Sess     *session.Service
	Upgrader websocket.Upgrader
}

func NewStreamHandler(h *ws.Hub, s *session.Service) *StreamHandler {
	return &StreamHandler{
		Hub:  h,
		Sess: s,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WS binds the browser to the conversation named by ?sess= and relays its
// control messages and microphone audio until the connection drops.
func (h *StreamHandler) WS(c *gin.Context) {
	id := c.Query("sess")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	conv, ok := h.Sess.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := ws.NewClient(conn)
	if prev := h.Hub.Add(id, client); prev != nil {
		_ = prev.Close()
	}

	// Cancelled with the connection, failing a start that is still pending.
	ctx, cancel := context.WithCancel(context.Background())
	platform := conv.Attach(client)
	defer func() {
		cancel()
		conv.Detach(client)
		h.Hub.Remove(id, client)
		_ = client.Close()
	}()

	conn.SetReadLimit(8 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go keepAlive(ctx, client)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("http: stream read", "session_id", id, "error", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			platform.PushAudio(msg)
		case websocket.TextMessage:
			var m types.ClientMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				slog.Debug("http: stream bad message", "session_id", id, "error", err)
				continue
			}
			switch m.Type {
			case msgStart:
				// The microphone answer arrives on this loop, so start must
				// not block it.
				go func() {
					if err := conv.Start(ctx); err != nil && !errors.Is(err, live.ErrCredentialMissing) {
						slog.Info("http: voice start failed", "session_id", id, "error", err)
					}
				}()
			case msgStop:
				go conv.Stop()
			case msgMic:
				platform.MicReply(m.Granted)
			default:
				slog.Debug("http: stream unknown message", "session_id", id, "type", m.Type)
			}
		}
	}
}

func keepAlive(ctx context.Context, c *ws.Client) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}
