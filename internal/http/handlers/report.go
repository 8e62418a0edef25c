package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/http/response"
	"github.com/interteks/loomtrack/internal/reports"
)

type ReportHandler struct {
	builder *reports.Builder
}

func NewReportHandler(builder *reports.Builder) *ReportHandler {
	return &ReportHandler{builder: builder}
}

// GET /api/reports/monthly?month=&date=
func (h *ReportHandler) Monthly(c *gin.Context) {
	rep, err := h.builder.Monthly(c.Request.Context(), c.Query("month"), c.Query("date"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": rep})
}

// GET /api/reports/shift?period=&month=&shift=&date=
func (h *ReportHandler) Shift(c *gin.Context) {
	rep, err := h.builder.Shift(
		c.Request.Context(),
		store.ParsePeriod(c.Query("period")),
		c.Query("month"),
		c.Query("shift"),
		c.Query("date"),
	)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": rep})
}
