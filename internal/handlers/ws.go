package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/models"
	"github.com/stolenhq/notify/internal/realtime"
)

type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log,
	}
}

// Subscribe upgrades the request to a websocket and streams the caller's
// realtime updates until the peer goes away. The feed identity comes from
// the authenticated token, never from the request: one user cannot attach
// to another's stream. Clients reconnect themselves; the server holds no
// per-connection retry state.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.APIResponse{
			Success: false,
			Error:   "authentication required",
			Message: "Unauthorized",
		})
		return
	}
	if requested := c.Query("user_id"); requested != "" && requested != userID {
		c.JSON(http.StatusForbidden, models.APIResponse{
			Success: false,
			Error:   "cannot subscribe to another user's updates",
			Message: "Forbidden",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	h.hub.Attach(userID, conn)
	defer func() {
		h.hub.Detach(userID, conn)
		conn.Close()
	}()

	// drain the read side so close/ping frames are processed; clients never
	// send application data on this socket
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
