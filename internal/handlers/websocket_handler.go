package handlers

import (
	"bridge-backend/internal/push"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades clients onto the status push hub.
type WebSocketHandler struct {
	hub *push.Hub
}

func NewWebSocketHandler(hub *push.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Subscribe handles GET /ws/conversions/:id.
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, c.Param("id"))
}
