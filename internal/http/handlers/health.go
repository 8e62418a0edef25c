package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/data/store"
)

type HealthHandler struct {
	service string
	backend store.Backend
}

func NewHealthHandler(service string, backend store.Backend) *HealthHandler {
	return &HealthHandler{service: service, backend: backend}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"ok": true, "service": h.service, "backend": h.backend.Kind()}
	if err := h.backend.Ping(ctx); err != nil {
		body["ok"] = false
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
