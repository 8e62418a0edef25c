package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	client := h.hub.NewClient()
	h.log.Debug("Live stream open", "clientID", client.ID, "remote", c.ClientIP())
	h.hub.Serve(c.Writer, c.Request, client)
}
