package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/http/response"
	"github.com/interteks/loomtrack/internal/services"
)

type StatusHandler struct {
	status services.StatusService
}

func NewStatusHandler(status services.StatusService) *StatusHandler {
	return &StatusHandler{status: status}
}

// GET /api/status
func (h *StatusHandler) List(c *gin.Context) {
	items, err := h.status.Status(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}

// GET /status/:loomId
func (h *StatusHandler) Get(c *gin.Context) {
	loomID := c.Param("loomId")
	c.Set("loom_id", loomID)
	item, err := h.status.LoomStatus(c.Request.Context(), loomID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"data": item.Snapshot, "cumulative": item.Cumulative, "meta": item.Meta})
}

// GET /api/monthly?month=YYYY-MM
func (h *StatusHandler) Monthly(c *gin.Context) {
	view, err := h.status.Monthly(c.Request.Context(), c.Query("month"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"month": view.Month, "items": view.Looms})
}

// GET /api/shifts?period=monthly|daily&month=&date=
func (h *StatusHandler) Shifts(c *gin.Context) {
	period := store.ParsePeriod(c.Query("period"))
	view, err := h.status.Shifts(c.Request.Context(), period, c.Query("month"), c.Query("date"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"period": view.Period, "key": view.Key, "shifts": view.Shifts})
}
