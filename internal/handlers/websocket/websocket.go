// internal/handlers/websocket/websocket.go
package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"ses-portal/internal/middleware"
	"ses-portal/internal/pkg/response"
	ws "ses-portal/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts upgrades from appOrigin only; an empty
// appOrigin falls back to gorilla's same-host check.
func NewWebSocketHandler(hub *ws.Hub, appOrigin string, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if origin := strings.TrimRight(appOrigin, "/"); origin != "" {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return sameOrigin(r.Header.Get("Origin"), origin)
		}
	}
	return h
}

// HandleConnection upgrades an authenticated request.
// MUST be used after Authenticated()
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	auth := &ws.ClientAuth{UserID: sess.UserID, TrackingID: sess.TrackingID}
	if role, ok := middleware.GetActiveRole(c); ok {
		auth.RoleID = role
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.Int64("user_id", sess.UserID),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	h.hub.Register <- client

	h.logger.Info("websocket client connected",
		zap.Int64("user_id", auth.UserID),
		zap.String("tracking_id", auth.TrackingID),
	)

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket connection statistics
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now(),
	}

	response.Success(c, http.StatusOK, "WebSocket stats", stats)
}

func sameOrigin(header, origin string) bool {
	if header == "" {
		return true
	}
	u, err := url.Parse(header)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme+"://"+u.Host, origin)
}
